package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presentio/presentio/internal/application/dto"
	appservice "github.com/presentio/presentio/internal/application/service"
	"github.com/presentio/presentio/internal/broadcast"
	"github.com/presentio/presentio/internal/config"
	"github.com/presentio/presentio/internal/device"
	"github.com/presentio/presentio/internal/infrastructure/crypto"
	"github.com/presentio/presentio/internal/infrastructure/notify"
	"github.com/presentio/presentio/internal/infrastructure/persistence/postgres"
	"github.com/presentio/presentio/internal/infrastructure/registry"
	"github.com/presentio/presentio/internal/interfaces/http/handlers"
	"github.com/presentio/presentio/internal/interfaces/http/middleware"
	"github.com/presentio/presentio/pkg/logger"
)

const (
	apiSecret = "api-test-secret"
	apiIssuer = "presentio"
)

type apiClient struct {
	server   *httptest.Server
	token    string
	tenantID uuid.UUID
}

func newAPIServer(t *testing.T) *apiClient {
	t.Helper()
	log := logger.NewNoopLogger()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := postgres.Connect(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	}, log)
	require.NoError(t, err)

	sessions := postgres.NewSessionRepository(db, log)
	templates := postgres.NewTemplateRepository(db, log)
	students := postgres.NewStudentRepository(db, log)
	devices := postgres.NewDeviceRepository(db, log)
	reg := registry.NewDeviceRegistry(devices, students, nil, time.Minute, log)

	factory := &device.SimLinkFactory{
		Config: device.SimConfig{Latency: 10 * time.Millisecond, SuccessRate: 1, Seed: 1},
		Log:    log,
	}
	pool := device.NewPool(reg, factory, nil, device.PoolConfig{
		AcquireTimeout: 100 * time.Millisecond,
	}, log)
	t.Cleanup(pool.Close)

	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	provider, err := crypto.NewStaticKeyProvider(&config.VaultConfig{
		StaticKeys:  map[string]string{"v1": key},
		ActiveKeyID: "v1",
	})
	require.NoError(t, err)
	cipher := crypto.NewTemplateCipher(provider, log)
	broadcaster := broadcast.NewBroadcaster(nil, log)

	enrollments := appservice.NewEnrollmentAppService(
		sessions, templates, students, reg, pool, cipher, broadcaster,
		notify.NewNoopNotifier(), nil,
		appservice.OrchestratorConfig{StageTimeout: 2 * time.Second, CancelGracePeriod: time.Second},
		log,
	)
	bulk := appservice.NewBulkService(enrollments, log)
	templateSvc := appservice.NewTemplateAppService(templates, students, reg, pool, cipher, log)
	management := appservice.NewManagementService(students, devices, log)

	cfg := &config.Config{JWT: config.JWTConfig{Secret: apiSecret, Issuer: apiIssuer}}
	router := NewRouter(cfg, Handlers{
		Enrollment: handlers.NewEnrollmentHandler(enrollments, bulk, broadcaster, log),
		Template:   handlers.NewTemplateHandler(templateSvc, log),
		Management: handlers.NewManagementHandler(management, log),
		Health:     handlers.NewHealthHandler(db),
	}, nil, log)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	tenantID := uuid.New()
	return &apiClient{server: server, token: signAPIToken(t, tenantID), tenantID: tenantID}
}

func signAPIToken(t *testing.T, tenantID uuid.UUID) string {
	t.Helper()
	claims := middleware.TenantClaims{
		TenantID: tenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    apiIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(apiSecret))
	require.NoError(t, err)
	return raw
}

// do issues an authenticated request and decodes the JSON response into out.
func (c *apiClient) do(t *testing.T, method, path string, body, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// provision registers a student and a device and syncs the roster.
func (c *apiClient) provision(t *testing.T, userRef uint32) (dto.StudentResponse, dto.DeviceResponse) {
	t.Helper()
	var student dto.StudentResponse
	code := c.do(t, http.MethodPost, "/api/v1/students", dto.CreateStudentRequest{
		FullName: "Test Student", DeviceUserRef: userRef,
	}, &student)
	require.Equal(t, http.StatusCreated, code)

	var dev dto.DeviceResponse
	code = c.do(t, http.MethodPost, "/api/v1/devices", dto.CreateDeviceRequest{Name: "gate-1"}, &dev)
	require.Equal(t, http.StatusCreated, code)

	code = c.do(t, http.MethodPost, "/api/v1/devices/"+dev.ID.String()+"/students",
		dto.SyncStudentRequest{StudentID: student.ID}, nil)
	require.Equal(t, http.StatusNoContent, code)
	return student, dev
}

func TestAPIRequiresAuth(t *testing.T) {
	c := newAPIServer(t)
	resp, err := c.server.Client().Get(c.server.URL + "/api/v1/enrollments")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	c := newAPIServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := c.server.Client().Get(c.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestEnrollmentLifecycleOverAPI(t *testing.T) {
	c := newAPIServer(t)
	student, dev := c.provision(t, 7)

	var started dto.SessionResponse
	code := c.do(t, http.MethodPost, "/api/v1/enrollments", dto.StartEnrollmentRequest{
		StudentID: student.ID, DeviceID: dev.ID, FingerIndex: 1,
	}, &started)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "in_progress", started.Status)

	// The session runs asynchronously; poll it to the terminal state.
	var final dto.SessionResponse
	require.Eventually(t, func() bool {
		code := c.do(t, http.MethodGet, "/api/v1/enrollments/"+started.ID.String(), nil, &final)
		return code == http.StatusOK && final.Status == "completed"
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.TemplateID)

	var templates dto.TemplateListResponse
	code = c.do(t, http.MethodGet, "/api/v1/templates", nil, &templates)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, templates.Templates, 1)
	assert.Equal(t, *final.TemplateID, templates.Templates[0].ID)

	var list dto.SessionListResponse
	code = c.do(t, http.MethodGet, "/api/v1/enrollments?student_id="+student.ID.String(), nil, &list)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, list.Total)

	// Retire and confirm the listing empties.
	code = c.do(t, http.MethodDelete, "/api/v1/students/"+student.ID.String()+"/templates", nil, nil)
	require.Equal(t, http.StatusNoContent, code)
	var remaining []dto.TemplateResponse
	code = c.do(t, http.MethodGet, "/api/v1/students/"+student.ID.String()+"/templates", nil, &remaining)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, remaining)
}

func TestBulkEnrollmentOverAPI(t *testing.T) {
	c := newAPIServer(t)
	student, dev := c.provision(t, 7)

	var resp dto.BulkEnrollmentResponse
	code := c.do(t, http.MethodPost, "/api/v1/enrollments/bulk", dto.BulkEnrollmentRequest{
		DeviceID: dev.ID,
		Items:    []dto.BulkItem{{StudentID: student.ID, FingerIndex: 0}, {StudentID: student.ID, FingerIndex: 1}},
	}, &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, resp.Succeeded)
}

func TestEnrollmentErrorEnvelope(t *testing.T) {
	c := newAPIServer(t)
	_, dev := c.provision(t, 7)

	req, err := http.NewRequest(http.MethodPost, c.server.URL+"/api/v1/enrollments",
		strings.NewReader(fmt.Sprintf(`{"student_id":%q,"device_id":%q}`, uuid.New(), dev.ID)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var envelope dto.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "not_found", envelope.Code)
	assert.NotEmpty(t, envelope.Message)
}

func TestProgressStreamOverAPI(t *testing.T) {
	c := newAPIServer(t)
	student, dev := c.provision(t, 7)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.server.URL+"/api/v1/enrollments/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	code := c.do(t, http.MethodPost, "/api/v1/enrollments", dto.StartEnrollmentRequest{
		StudentID: student.ID, DeviceID: dev.ID,
	}, nil)
	require.Equal(t, http.StatusAccepted, code)

	// Read SSE frames until the terminal completed event arrives.
	scanner := bufio.NewScanner(resp.Body)
	sawProgress, sawCompleted := false, false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event:progress" {
			sawProgress = true
		}
		if line == "event:completed" {
			sawCompleted = true
			break
		}
	}
	assert.True(t, sawProgress, "expected at least one progress frame")
	assert.True(t, sawCompleted, "expected the terminal completed frame")
}
