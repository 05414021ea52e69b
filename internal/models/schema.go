package models

// TableInfo describes one table reported by the connection check
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"type"`
}
