package domain

// Submission is the loosely-structured client payload, before validation.
// Fields arrive from a JSON body, a form body, or query parameters.
type Submission struct {
	Type     string `json:"type"`
	Domain   string `json:"domain"`
	Referrer string `json:"referrer"`
	Path     string `json:"path"`
	URL      string `json:"url"`
}

// ClientMeta carries the request-scoped state ingestion needs, extracted by
// the transport layer so the core stays testable without an HTTP stack.
type ClientMeta struct {
	Origin    string // Origin header, domain fallback
	Referer   string // Referer header, second domain fallback
	IP        string // proxy-chain resolved client address; "" means unknown
	UserAgent string
}
