package e2e

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/samplepack/internal/client"
	"github.com/makeasinger/samplepack/internal/config"
	"github.com/makeasinger/samplepack/internal/handler"
	"github.com/makeasinger/samplepack/internal/logging"
	"github.com/makeasinger/samplepack/internal/service"
	ws "github.com/makeasinger/samplepack/internal/websocket"
	"github.com/makeasinger/samplepack/internal/worker"
	"github.com/makeasinger/samplepack/pkg/response"
)

const testTotalSamples = 10

// pngHeader is enough for content sniffing; the mock descriptor never decodes it
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *service.JobStore
}

// gatedDescriptor holds analysis until the gate is closed
type gatedDescriptor struct {
	inner service.Descriptor
	gate  chan struct{}
}

func (d *gatedDescriptor) Describe(ctx context.Context, image []byte, count int) ([]string, error) {
	select {
	case <-d.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return d.inner.Describe(ctx, image, count)
}

// setupApp creates a Fiber app wired like main.go with every external client
// unconfigured, so the pipeline runs on mock descriptions and mock tones.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	return setupAppWithDescriptor(t, service.NewDescriptorService(nil))
}

func setupAppWithDescriptor(t *testing.T, descriptor service.Descriptor) *testApp {
	t.Helper()

	workDir := t.TempDir()
	storage, err := client.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	log := logging.Nop()
	validate := validator.New()

	store := service.NewJobStore()
	staging := service.NewStaging(workDir)
	synthesis := service.NewSynthesisService(nil, &config.SynthConfig{SampleRate: 8000})
	packager := service.NewPackageService(storage, staging)
	sampleWorker := worker.NewSampleWorker(store, descriptor, synthesis, packager, staging, log)

	dispatcher := worker.NewLocalDispatcher(sampleWorker, 2, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = dispatcher.Shutdown(ctx)
	})

	sampleService := service.NewSampleService(store, dispatcher, storage, testTotalSamples)
	sampleHandler := handler.NewSampleHandler(sampleService, validate)
	hub := ws.NewHub(store, 10*time.Millisecond, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: response.ErrorHandler,
		BodyLimit:    50 * 1024 * 1024,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":         "ok",
			"jobs":           store.Len(),
			"ws_connections": hub.Connections(),
			"services": fiber.Map{
				"vision":  false,
				"synth":   false,
				"storage": config.StorageDriverLocal,
				"queue":   config.QueueDriverLocal,
			},
		})
	})

	handler.RegisterRoutes(app, sampleHandler, hub)

	return &testApp{app: app, store: store}
}

// createBody returns a POST /sample body carrying a tiny PNG payload.
func createBody() string {
	return `{"image_base64":"` + base64.StdEncoding.EncodeToString(pngHeader) + `"}`
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// submitJob posts a job and returns its id.
func submitJob(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, err := doRequest(app, http.MethodPost, "/sample", createBody(), nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	jobID, _ := result["job_id"].(string)
	require.NotEmpty(t, jobID, "expected 'job_id' in response")
	return jobID
}

// waitForStatus polls the status endpoint until the job reports want.
func waitForStatus(t *testing.T, app *fiber.App, jobID, want string) map[string]interface{} {
	t.Helper()
	var last map[string]interface{}
	require.Eventually(t, func() bool {
		resp, err := doRequest(app, http.MethodGet, "/sample/"+jobID, "", nil)
		if err != nil {
			return false
		}
		last = parseJSON(t, resp)
		return last["status"] == want
	}, 10*time.Second, 20*time.Millisecond, "job %s never reached %s", jobID, want)
	return last
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	detail, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := detail["code"].(string)
	return code
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
