package e2e

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func validGenerateBody(userID string) string {
	return fmt.Sprintf(`{
		"userId": "%s",
		"key": "D",
		"scale": "minor",
		"tempo": 90,
		"midiLength": "Short"
	}`, userID)
}

func TestGenerate_Success(t *testing.T) {
	ta := setupApp(t)
	userID := uuid.New().String()

	resp, err := doRequest(ta.app, http.MethodPost, "/api/generate", validGenerateBody(userID), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["runId"] == nil || result["runId"] == "" {
		t.Error("expected 'runId' in response")
	}
	if result["message"] != "Orchestration process started" {
		t.Errorf("unexpected message %v", result["message"])
	}
}

func TestGenerate_MissingUserID(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/generate", `{"key": "C"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", result)
	}
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", errObj["code"])
	}
	if errObj["message"] != "User ID is a required parameter." {
		t.Errorf("unexpected message %v", errObj["message"])
	}
}

func TestGenerate_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/generate", `not json`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestGenerate_WrongMethod(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/generate", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusMethodNotAllowed)
}

func TestGenerateStatus_AfterStart(t *testing.T) {
	ta := setupApp(t)
	userID := uuid.New().String()

	resp, err := doRequest(ta.app, http.MethodPost, "/api/generate", validGenerateBody(userID), nil)
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	started := parseJSON(t, resp)

	resp, err = doRequest(ta.app, http.MethodGet, "/api/generate/status/"+userID, "", nil)
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["step"] != "init" {
		t.Errorf("expected step 'init', got %v", result["step"])
	}
	if result["runId"] != started["runId"] {
		t.Errorf("expected status runId %v, got %v", started["runId"], result["runId"])
	}
	if result["ready"] != false {
		t.Errorf("expected ready=false, got %v", result["ready"])
	}
}

func TestGenerateStatus_UnknownUser(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/generate/status/"+uuid.New().String(), "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)

	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", result)
	}
	if errObj["code"] != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", errObj["code"])
	}
}
