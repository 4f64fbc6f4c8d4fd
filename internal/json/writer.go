package json

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dgellow/generateui-api/internal/log"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// encodeFailureBody is sent when data cannot be marshalled. Nothing has been
// written at that point, so the client still gets a well-formed 500.
const encodeFailureBody = `{"error":"Internal Server Error"}`

// WriteResponse marshals data and writes it with statusCode. Marshalling
// happens before any header is sent.
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		writeRaw(w, http.StatusInternalServerError, []byte(encodeFailureBody))
		return err
	}
	writeRaw(w, statusCode, body)
	return nil
}

func writeRaw(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

// Write writes a JSON response with 200 OK status
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteError writes {"error": message}. Error bodies are never cached.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Cache-Control", "no-store")
	_ = WriteResponse(w, statusCode, ErrorResponse{Error: message})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}
