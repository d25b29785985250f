package models

// APIProblem is the RFC 7807 error shape referenced by swagger
// annotations. Handlers write the real response through the server
// package; this type only documents it.
type APIProblem struct {
	Type     string `json:"type" example:"https://hashfleet.io/problems/bad-request"`
	Title    string `json:"title" example:"Bad Request"`
	Status   int    `json:"status" example:"400"`
	Detail   string `json:"detail,omitempty" example:"device IP is required"`
	Instance string `json:"instance,omitempty" example:"/api/v1/telemetry"`
}
