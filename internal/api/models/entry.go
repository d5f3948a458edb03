package models

// EntryResponse is a registered controller as exposed over the API. The API
// keys never leave the service; only the secret key's last 4 characters are
// shown so operators can tell credentials apart.
type EntryResponse struct {
	SerialNumber   string    `json:"serialNumber"`
	Title          string    `json:"title"`
	Host           string    `json:"host"`
	DeviceClass    string    `json:"deviceClass"`
	SecretKeyLast4 string    `json:"secretKeyLast4"`
	CreatedAt      Timestamp `json:"createdAt"`
}

// EntryListResponse wraps the list of registered controllers.
type EntryListResponse struct {
	Entries []EntryResponse `json:"entries"`
}
