// internal/workers/data-access/query-postgresql/models.go
package querypostgresql

type Input struct {
	QueryType   string `json:"queryType"`
	NGOID       string `json:"ngoId,omitempty"`
	TaskID      string `json:"taskId,omitempty"`
	VolunteerID string `json:"volunteerId,omitempty"`
	UserType    string `json:"userType,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

type Output struct {
	Data               interface{} `json:"data"`
	RowCount           int         `json:"rowCount"`
	QueryExecutionTime int64       `json:"queryExecutionTime"` // milliseconds
}
