//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/msgflow/internal/adapters/eventbus"
	httpadapter "github.com/jsamuelsen/msgflow/internal/adapters/http"
	"github.com/jsamuelsen/msgflow/internal/adapters/http/handlers"
	"github.com/jsamuelsen/msgflow/internal/adapters/storage/sqlite"
	"github.com/jsamuelsen/msgflow/internal/app"
	"github.com/jsamuelsen/msgflow/internal/messaging"
	"github.com/jsamuelsen/msgflow/internal/platform/config"
	"github.com/jsamuelsen/msgflow/internal/ports"
	"github.com/jsamuelsen/msgflow/internal/unitofwork"
)

// testContext holds state shared across step definitions within a scenario.
type testContext struct {
	baseURL      string
	client       *http.Client
	server       *httptest.Server
	store        *sqlite.Store
	response     *http.Response
	responseBody []byte
	err          error
}

// newTestContext targets BASE_URL when set; otherwise every scenario gets a
// fresh in-process service on an in-memory outbox.
func newTestContext() *testContext {
	return &testContext{
		baseURL: os.Getenv("BASE_URL"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// startInProcess wires the service the way cmd/msgflow does.
func (tc *testContext) startInProcess() error {
	store, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		return err
	}

	factory := unitofwork.NewFactory(
		unitofwork.WithCorrelationDataProvider(messaging.NewMessageOriginProvider()),
		unitofwork.WithMaxDepth(8),
	)

	bus := eventbus.New(factory)
	stats := app.NewStats()
	bus.Subscribe(eventbus.Wildcard, stats)

	dispatcher := app.NewDispatcher()
	if err := app.RegisterBuiltins(dispatcher, store, bus); err != nil {
		return err
	}

	registry := ports.NewHealthRegistry()
	if err := registry.Register(store); err != nil {
		return err
	}

	engine := gin.New()
	routerCfg := httpadapter.NewRouterConfig(&config.Config{
		App:        config.AppConfig{Name: "msgflow-integration"},
		Processing: config.ProcessingConfig{Timeout: 5 * time.Second},
	})
	routerCfg.Health = handlers.NewHealthHandler(registry, handlers.BuildInfo{}, nil)
	routerCfg.Messages = handlers.NewMessageHandler(app.NewProcessor(dispatcher, factory), 4)
	routerCfg.Events = handlers.NewEventHandler(store, stats, 100)
	httpadapter.SetupRouter(engine, routerCfg)

	tc.store = store
	tc.server = httptest.NewServer(engine)
	tc.baseURL = tc.server.URL

	return nil
}

// reset clears response state between scenarios.
func (tc *testContext) reset() {
	if tc.response != nil && tc.response.Body != nil {
		tc.response.Body.Close()
	}
	tc.response = nil
	tc.responseBody = nil
	tc.err = nil
}

// stop shuts the in-process service down.
func (tc *testContext) stop() {
	if tc.server != nil {
		tc.server.Close()
		tc.server = nil
		tc.baseURL = ""
	}
	if tc.store != nil {
		_ = tc.store.Close()
		tc.store = nil
	}
}

// InitializeScenario registers step definitions for each scenario.
func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := newTestContext()
	external := tc.baseURL != ""

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		if external {
			return ctx, nil
		}
		return ctx, tc.startInProcess()
	})

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		tc.reset()
		if !external {
			tc.stop()
		}
		return ctx, nil
	})

	ctx.Step(`^the service is running$`, tc.theServiceIsRunning)
	ctx.Step(`^I request GET "([^"]*)"$`, tc.iRequestGET)
	ctx.Step(`^I POST "([^"]*)" with body:$`, tc.iPOSTWithBody)
	ctx.Step(`^I send the message "([^"]*)" with payload:$`, tc.iSendTheMessageWithPayload)
	ctx.Step(`^I send the message "([^"]*)" with correlation id "([^"]*)"$`, tc.iSendTheMessageWithCorrelationID)
	ctx.Step(`^the response status should be (\d+)$`, tc.theResponseStatusShouldBe)
	ctx.Step(`^the response should contain "((?:[^"\\]|\\.)*)"$`, tc.theResponseShouldContain)
	ctx.Step(`^the outbox should contain (\d+) events?$`, tc.theOutboxShouldContain)
	ctx.Step(`^the stats should count (\d+) "([^"]*)" events?$`, tc.theStatsShouldCount)
}

// theServiceIsRunning verifies the service is reachable.
func (tc *testContext) theServiceIsRunning() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tc.baseURL+"/-/live", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("service is not running at %s: %w", tc.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status %d", resp.StatusCode)
	}

	return nil
}

func (tc *testContext) do(method, path string, body []byte, headers map[string]string) error {
	tc.reset()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, tc.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	tc.response, tc.err = tc.client.Do(req)
	if tc.err != nil {
		return fmt.Errorf("request failed: %w", tc.err)
	}

	tc.responseBody, tc.err = io.ReadAll(tc.response.Body)
	if tc.err != nil {
		return fmt.Errorf("failed to read response body: %w", tc.err)
	}

	return nil
}

// iRequestGET makes a GET request to the specified path.
func (tc *testContext) iRequestGET(path string) error {
	return tc.do(http.MethodGet, path, nil, nil)
}

func (tc *testContext) iPOSTWithBody(path string, body *godog.DocString) error {
	return tc.do(http.MethodPost, path, []byte(body.Content), nil)
}

func (tc *testContext) iSendTheMessageWithPayload(name string, payload *godog.DocString) error {
	body, err := json.Marshal(map[string]any{
		"name":    name,
		"payload": json.RawMessage(payload.Content),
	})
	if err != nil {
		return err
	}
	return tc.do(http.MethodPost, "/api/v1/messages", body, nil)
}

func (tc *testContext) iSendTheMessageWithCorrelationID(name, correlationID string) error {
	body, err := json.Marshal(map[string]any{"name": name})
	if err != nil {
		return err
	}
	return tc.do(http.MethodPost, "/api/v1/messages", body, map[string]string{
		"X-Correlation-ID": correlationID,
	})
}

// theResponseStatusShouldBe asserts the response status code.
func (tc *testContext) theResponseStatusShouldBe(expectedCode int) error {
	if tc.response == nil {
		return fmt.Errorf("no response received")
	}

	if tc.response.StatusCode != expectedCode {
		return fmt.Errorf("expected status %d, got %d. Body: %s",
			expectedCode, tc.response.StatusCode, string(tc.responseBody))
	}

	return nil
}

// theResponseShouldContain asserts the response body contains the given
// text. Escaped quotes in the step text match plain quotes.
func (tc *testContext) theResponseShouldContain(text string) error {
	if tc.responseBody == nil {
		return fmt.Errorf("no response body")
	}

	text = strings.ReplaceAll(text, `\"`, `"`)
	body := string(tc.responseBody)
	if !strings.Contains(body, text) {
		return fmt.Errorf("response body does not contain %q.\nBody: %s", text, body)
	}

	return nil
}

func (tc *testContext) theOutboxShouldContain(count int) error {
	if err := tc.do(http.MethodGet, "/api/v1/events?limit=100", nil, nil); err != nil {
		return err
	}

	var page struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(tc.responseBody, &page); err != nil {
		return fmt.Errorf("decoding events: %w", err)
	}

	if len(page.Items) != count {
		return fmt.Errorf("expected %d events in the outbox, got %d: %s", count, len(page.Items), tc.responseBody)
	}

	return nil
}

func (tc *testContext) theStatsShouldCount(count int, name string) error {
	if err := tc.do(http.MethodGet, "/api/v1/stats", nil, nil); err != nil {
		return err
	}

	var stats struct {
		Events map[string]int `json:"events"`
	}
	if err := json.Unmarshal(tc.responseBody, &stats); err != nil {
		return fmt.Errorf("decoding stats: %w", err)
	}

	if got := stats.Events[name]; got != count {
		return fmt.Errorf("expected %d %q events, got %d", count, name, got)
	}

	return nil
}

// TestFeatures runs the GoDog BDD test suite.
func TestFeatures(t *testing.T) {
	gin.SetMode(gin.TestMode)

	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../features"},
			TestingT: t,
			Tags:     os.Getenv("GODOG_TAGS"),
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
