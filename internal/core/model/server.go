package model

// ServerInfo 服务器目录中的一个型号，用于新品上架发现
type ServerInfo struct {
	PlanCode  string `json:"planCode"`
	Name      string `json:"name"`
	CPU       string `json:"cpu"`
	Memory    string `json:"memory"`
	Storage   string `json:"storage"`
	Bandwidth string `json:"bandwidth"`
}
