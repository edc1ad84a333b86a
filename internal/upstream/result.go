package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Kind int

const (
	KindSuccess          Kind = iota // 2xx and no error field
	KindUpstreamError                // non-2xx with a structured error
	KindAnomaly                      // status and error field disagree
	KindMalformed                    // body is not JSON
	KindTransportFailure             // request never completed
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindUpstreamError:
		return "upstream_error"
	case KindAnomaly:
		return "anomaly"
	case KindMalformed:
		return "malformed"
	case KindTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Result is the classified outcome of one upstream call.
type Result struct {
	Kind       Kind
	Payload    string // compact JSON, set for KindSuccess
	Code       int    // upstream error code, 0 when absent
	Message    string
	Status     int
	StatusText string
	Err        error
	Duration   time.Duration
	// URL is the request URL with the API key masked, for logging.
	URL string
}

func (r Result) OK() bool {
	return r.Kind == KindSuccess
}

// Classify turns a raw upstream response into a Result. The body has to be JSON;
// a top level "error" member counts when its value is truthy.
func Classify(status int, statusText string, body []byte) Result {
	res := Result{Status: status, StatusText: statusText}

	var compact bytes.Buffer
	if err := json.Compact(&compact, bytes.TrimSpace(body)); err != nil {
		res.Kind = KindMalformed
		res.Err = fmt.Errorf("decode upstream body: %w", err)
		return res
	}

	hasError := false
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(compact.Bytes(), &envelope); err == nil {
		if raw, ok := envelope["error"]; ok && truthy(raw) {
			hasError = true
			res.Code = errorCode(raw)
			res.Message = errorMessage(envelope["message"])
		}
	}

	statusOK := status >= 200 && status <= 299

	switch {
	case statusOK && !hasError:
		res.Kind = KindSuccess
		res.Payload = compact.String()
	case !statusOK && hasError:
		res.Kind = KindUpstreamError
	default:
		res.Kind = KindAnomaly
	}

	return res
}

func truthy(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

func errorCode(raw json.RawMessage) int {
	var code json.Number
	if err := json.Unmarshal(raw, &code); err == nil {
		if n, err := code.Int64(); err == nil {
			return int(n)
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}

	return 0
}

func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(raw)
}
