// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound collaborators; engine calls are short request/response.
var HTTPClient = &http.Client{
	Timeout: 10 * time.Second,
}
