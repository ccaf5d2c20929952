// internal/models/query_types.go
package models

type QueryType string

const (
	QueryTypeNGOTasksWithCounts  QueryType = "ngo_tasks_with_counts"
	QueryTypeTaskVolunteers      QueryType = "task_volunteers"
	QueryTypeNGOVolunteerRoster  QueryType = "ngo_volunteer_roster"
	QueryTypeNGOAnalytics        QueryType = "ngo_analytics"
	QueryTypeVolunteerStats      QueryType = "volunteer_stats"
	QueryTypeVolunteerEngagement QueryType = "volunteer_engagements"
	QueryTypeUnreadNotifications QueryType = "unread_notifications"
)
