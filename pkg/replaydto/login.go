package replaydto

type LoginResult struct {
	Username      string            `json:"username"`
	Authenticated bool              `json:"authenticated"`
	Reason        string            `json:"reason,omitempty"`
	Code          string            `json:"code,omitempty"`
	WarningCode   string            `json:"warning_code,omitempty"`
	ServerVersion string            `json:"server_version,omitempty"`
	Attrs         map[string]string `json:"attrs,omitempty"`
}
