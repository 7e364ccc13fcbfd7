package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// GraphQLRequest is one operation extracted from an HTTP request.
type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// strategy says where the operation is read from.
type strategy int

const (
	fromQueryString strategy = iota
	fromJSONBody
	fromGraphQLBody
	unsupportedMedia
)

// chooseStrategy is the extraction decision table over method and content
// type. Only GET and POST reach it.
func chooseStrategy(r *http.Request) strategy {
	if r.Method == http.MethodGet {
		return fromQueryString
	}
	ct := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(ct, "application/json"):
		return fromJSONBody
	case strings.Contains(ct, "application/graphql"):
		return fromGraphQLBody
	case r.URL.Query().Has("query"):
		return fromQueryString
	default:
		return unsupportedMedia
	}
}

// requestError is a rejection written before any execution. JSON bodies
// are sent as objects; text bodies as plain text.
type requestError struct {
	status int
	json   map[string]string
	text   string
}

func (e *requestError) write(w http.ResponseWriter, pretty bool) {
	if e.json != nil {
		writeJSON(w, e.status, e.json, pretty)
		return
	}
	http.Error(w, e.text, e.status)
}

var (
	errBadVariables = &requestError{status: http.StatusBadRequest, json: map[string]string{"error": "Unable to decode variables: Invalid JSON."}}
	errBadJSON      = &requestError{status: http.StatusBadRequest, json: map[string]string{"error": "Invalid JSON."}}
	errNoQuery      = &requestError{status: http.StatusBadRequest, text: "No GraphQL query found in the request"}
	errUnsupported  = &requestError{status: http.StatusUnsupportedMediaType, text: "Unsupported Media Type"}
	errTooLarge     = &requestError{status: http.StatusRequestEntityTooLarge, text: "Request Entity Too Large"}
	errReadBody     = &requestError{status: http.StatusBadRequest, text: "Unable to read request body"}
)

// extract reads the operations of r. batch reports a JSON array body, in
// which case every element is returned in order.
func extract(r *http.Request) (reqs []GraphQLRequest, batch bool, rerr *requestError) {
	q := r.URL.Query()
	vars, rerr := queryVariables(q)
	if rerr != nil {
		return nil, false, rerr
	}

	switch chooseStrategy(r) {
	case fromQueryString:
		req := GraphQLRequest{Query: q.Get("query"), OperationName: q.Get("operationName"), Variables: vars}
		if !q.Has("query") {
			return nil, false, errNoQuery
		}
		return []GraphQLRequest{req}, false, nil

	case fromGraphQLBody:
		body, rerr := readBody(r)
		if rerr != nil {
			return nil, false, rerr
		}
		req := GraphQLRequest{Query: string(body), OperationName: q.Get("operationName"), Variables: vars}
		return []GraphQLRequest{req}, false, nil

	case fromJSONBody:
		body, rerr := readBody(r)
		if rerr != nil {
			return nil, false, rerr
		}
		return decodeJSONBody(body, vars)

	default:
		return nil, false, errUnsupported
	}
}

func queryVariables(q url.Values) (map[string]any, *requestError) {
	if !q.Has("variables") {
		return nil, nil
	}
	var vars map[string]any
	if err := decodeVariables([]byte(q.Get("variables")), &vars); err != nil {
		return nil, errBadVariables
	}
	return vars, nil
}

func readBody(r *http.Request) ([]byte, *requestError) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, errTooLarge
		}
		return nil, errReadBody
	}
	return body, nil
}

// jsonOperation keeps track of which keys the body set, so that a body
// "variables" key, even null, overrides the query string.
type jsonOperation struct {
	Query         *string         `json:"query"`
	OperationName string          `json:"operationName"`
	Variables     json.RawMessage `json:"variables"`
	Extensions    map[string]any  `json:"extensions"`
}

func decodeJSONBody(body []byte, vars map[string]any) ([]GraphQLRequest, bool, *requestError) {
	trimmed := strings.TrimLeft(string(body), " \t\r\n")
	batch := strings.HasPrefix(trimmed, "[")

	var ops []jsonOperation
	if batch {
		if err := json.Unmarshal(body, &ops); err != nil {
			return nil, true, errBadJSON
		}
		if len(ops) == 0 {
			return nil, true, errNoQuery
		}
	} else {
		var op jsonOperation
		if err := json.Unmarshal(body, &op); err != nil {
			return nil, false, errBadJSON
		}
		ops = []jsonOperation{op}
	}

	reqs := make([]GraphQLRequest, len(ops))
	for i, op := range ops {
		if op.Query == nil {
			return nil, batch, errNoQuery
		}
		req := GraphQLRequest{Query: *op.Query, OperationName: op.OperationName, Variables: vars, Extensions: op.Extensions}
		if op.Variables != nil {
			req.Variables = nil
			if err := decodeVariables(op.Variables, &req.Variables); err != nil {
				return nil, batch, errBadJSON
			}
		}
		reqs[i] = req
	}
	return reqs, batch, nil
}

// decodeVariables keeps numbers as json.Number so that variable coercion
// sees the literal the client sent.
func decodeVariables(data []byte, vars *map[string]any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(vars); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("trailing data after variables")
	}
	return nil
}
