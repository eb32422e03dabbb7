package handler

import (
	"archive/zip"
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/qla/internal/i18n"
	"github.com/pavelanni/qla/internal/metrics"
	"github.com/pavelanni/qla/internal/model"
	"github.com/pavelanni/qla/internal/store"
	"github.com/pavelanni/qla/internal/wizard"
)

type testServer struct {
	srv    *httptest.Server
	h      *Handler
	outDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	outDir := filepath.Join(t.TempDir(), "QLA_Reports")
	h, err := New(s, metrics.New(), model.ServerConfig{
		OutputDir:  outDir,
		LogoPath:   filepath.Join(t.TempDir(), "logo.PNG"),
		SessionTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("handler.New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, h: h, outDir: outDir}
}

// testClient behaves like one browser: it keeps cookies and submits the
// CSRF token rendered in the last page it displayed.
type testClient struct {
	t         *testing.T
	ts        *testServer
	client    *http.Client
	pageToken string
}

var csrfInput = regexp.MustCompile(`name="csrf_token" value="([^"]*)"`)

func (ts *testServer) newClient(t *testing.T) *testClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	tc := &testClient{t: t, ts: ts, client: client}
	tc.get("/") // establish session and CSRF cookies
	return tc
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	return newTestServer(t).newClient(t)
}

func (tc *testClient) cookie(name string) string {
	u, _ := url.Parse(tc.ts.srv.URL)
	for _, c := range tc.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// reportDir is where this client's session writes its reports.
func (tc *testClient) reportDir() string {
	return filepath.Join(tc.ts.outDir, tc.cookie(sessionCookieName))
}

func (tc *testClient) do(req *http.Request) (int, string) {
	tc.t.Helper()
	resp, err := tc.client.Do(req)
	if err != nil {
		tc.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tc.t.Fatalf("read body: %v", err)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		if m := csrfInput.FindStringSubmatch(string(body)); m != nil {
			tc.pageToken = m[1]
		}
	}
	return resp.StatusCode, string(body)
}

func (tc *testClient) get(path string) (int, string) {
	tc.t.Helper()
	req, _ := http.NewRequest(http.MethodGet, tc.ts.srv.URL+path, nil)
	return tc.do(req)
}

func (tc *testClient) post(path string, form url.Values) (int, string) {
	tc.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", tc.pageToken)
	req, _ := http.NewRequest(http.MethodPost, tc.ts.srv.URL+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return tc.do(req)
}

func (tc *testClient) upload(csv string) (int, string) {
	tc.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("csrf_token", tc.pageToken)
	fw, _ := mw.CreateFormFile("student_file", "students.csv")
	_, _ = fw.Write([]byte(csv))
	_ = mw.Close()
	req, _ := http.NewRequest(http.MethodPost, tc.ts.srv.URL+"/roster", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return tc.do(req)
}

func expectStatus(t *testing.T, what string, got, want int) {
	t.Helper()
	if got != want {
		t.Fatalf("%s: status = %d, want %d", what, got, want)
	}
}

// advanceToScores walks the wizard through setup and boundaries.
func (tc *testClient) advanceToScores() {
	tc.t.Helper()
	code, _ := tc.post("/setup", url.Values{
		"num_papers":  {"1"},
		"questions_1": {"2"},
		"topic_1_1":   {"Algebra"},
		"marks_1_1":   {"10"},
		"topic_1_2":   {""},
		"marks_1_2":   {"3"},
	})
	expectStatus(tc.t, "setup", code, http.StatusSeeOther)
	code, _ = tc.post("/boundaries", url.Values{"scheme": {string(model.SchemeGCSE)}, "gb_9": {"95"}})
	expectStatus(tc.t, "boundaries", code, http.StatusSeeOther)
}

func TestWizardFlow(t *testing.T) {
	tc := newTestClient(t)

	code, body := tc.get("/")
	expectStatus(t, "index", code, http.StatusOK)
	if !strings.Contains(body, "<h1>Step 1: Set Up Your Assessment</h1>") {
		t.Fatalf("index is not the setup step")
	}

	tc.advanceToScores()
	_, body = tc.get("/")
	if !strings.Contains(body, "<h1>Step 3: Upload Student List and Enter Scores</h1>") {
		t.Fatalf("expected score step after boundaries")
	}

	code, _ = tc.upload("name,current_grade,target_grade\nJane Smith,B,A\n")
	expectStatus(t, "upload", code, http.StatusSeeOther)
	_, body = tc.get("/")
	if !strings.Contains(body, "Jane Smith | Current: B → Target: A") || !strings.Contains(body, `name="s_0_1_1"`) {
		t.Fatalf("score grid missing after upload")
	}

	code, _ = tc.post("/scores", url.Values{"s_0_1_1": {"8"}})
	expectStatus(t, "scores", code, http.StatusSeeOther)

	code, body = tc.get("/")
	expectStatus(t, "generate", code, http.StatusOK)
	if !strings.Contains(body, "Jane_Smith_QLA_Report.pdf") {
		t.Errorf("generate page does not list the report")
	}
	if !strings.Contains(body, "without a logo") {
		t.Errorf("missing logo notice not shown")
	}
	if _, err := os.Stat(filepath.Join(tc.reportDir(), "Jane_Smith_QLA_Report.pdf")); err != nil {
		t.Errorf("report not written: %v", err)
	}

	code, body = tc.get("/reports/archive")
	expectStatus(t, "archive", code, http.StatusOK)
	zr, err := zip.NewReader(strings.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("archive is not a zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "Jane_Smith_QLA_Report.pdf" {
		t.Errorf("archive entries = %v", zr.File)
	}

	code, body = tc.get("/reports/Jane_Smith_QLA_Report.pdf")
	expectStatus(t, "report file", code, http.StatusOK)
	if !strings.HasPrefix(body, "%PDF-") {
		t.Errorf("report download is not a PDF")
	}

	code, _ = tc.post("/reset", nil)
	expectStatus(t, "reset", code, http.StatusSeeOther)
	_, body = tc.get("/")
	if !strings.Contains(body, "<h1>Step 1: Set Up Your Assessment</h1>") {
		t.Errorf("reset did not return to the setup step")
	}
	if _, err := os.Stat(tc.reportDir()); !os.IsNotExist(err) {
		t.Errorf("reset left the session's reports behind: %v", err)
	}
}

func TestRosterMissingColumns(t *testing.T) {
	tc := newTestClient(t)
	tc.advanceToScores()

	code, _ := tc.upload("name,current_grade,target_grade\nJohn Doe,C,B\n")
	expectStatus(t, "first upload", code, http.StatusSeeOther)

	code, body := tc.upload("name,current_grade\nAl,C\n")
	expectStatus(t, "bad upload", code, http.StatusUnprocessableEntity)
	if !strings.Contains(body, "your CSV must include: name, current_grade, target_grade") {
		t.Errorf("missing inline error, body: %s", body)
	}

	_, body = tc.get("/")
	if !strings.Contains(body, "John Doe") || strings.Contains(body, "Al |") {
		t.Errorf("rejected upload changed the roster")
	}
}

func TestSetupWithoutTopics(t *testing.T) {
	tc := newTestClient(t)
	code, body := tc.post("/setup", url.Values{"num_papers": {"1"}, "questions_1": {"1"}, "marks_1_1": {"5"}})
	expectStatus(t, "setup", code, http.StatusUnprocessableEntity)
	if !strings.Contains(body, "at least one question needs a topic") {
		t.Errorf("missing inline error")
	}
	_, body = tc.get("/")
	if !strings.Contains(body, "<h1>Step 1: Set Up Your Assessment</h1>") {
		t.Errorf("failed setup advanced the wizard")
	}
}

func TestSetupLayout(t *testing.T) {
	tc := newTestClient(t)
	code, body := tc.post("/setup/layout", url.Values{
		"num_papers": {"2"}, "questions_1": {"2"}, "questions_2": {"1"}, "topic_1_1": {"Algebra"},
	})
	expectStatus(t, "layout", code, http.StatusOK)
	for _, field := range []string{`name="topic_1_2"`, `name="topic_2_1"`, `value="Algebra"`} {
		if !strings.Contains(body, field) {
			t.Errorf("layout page missing %s", field)
		}
	}
	code, _ = tc.post("/setup/layout", url.Values{"num_papers": {"4"}})
	expectStatus(t, "too many papers", code, http.StatusUnprocessableEntity)
}

func TestSchemeChange(t *testing.T) {
	tc := newTestClient(t)
	code, _ := tc.post("/setup", url.Values{"num_papers": {"1"}, "questions_1": {"1"}, "topic_1_1": {"Algebra"}, "marks_1_1": {"5"}})
	expectStatus(t, "setup", code, http.StatusSeeOther)

	code, _ = tc.post("/boundaries/scheme", url.Values{"scheme": {string(model.SchemeALevel)}})
	expectStatus(t, "scheme", code, http.StatusSeeOther)
	_, body := tc.get("/")
	if !strings.Contains(body, `name="gb_A*"`) || strings.Contains(body, `name="gb_9"`) {
		t.Errorf("A-Level boundaries not shown after scheme change")
	}

	code, body = tc.post("/boundaries", url.Values{"scheme": {string(model.SchemeALevel)}, "gb_A": {"150"}})
	expectStatus(t, "bad boundary", code, http.StatusUnprocessableEntity)
	if !strings.Contains(body, "between 0 and 100") {
		t.Errorf("missing range error")
	}
}

func TestScoreAboveMax(t *testing.T) {
	tc := newTestClient(t)
	tc.advanceToScores()
	tc.upload("name,current_grade,target_grade\nJane Smith,B,A\n")
	code, _ := tc.post("/scores", url.Values{"s_0_1_1": {"11"}})
	expectStatus(t, "scores", code, http.StatusUnprocessableEntity)
}

func TestCSRFRequired(t *testing.T) {
	tc := newTestClient(t)
	req, _ := http.NewRequest(http.MethodPost, tc.ts.srv.URL+"/reset", strings.NewReader("csrf_token=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	code, _ := tc.do(req)
	expectStatus(t, "reset with bad token", code, http.StatusForbidden)
}

func TestGenerateBeforeComplete(t *testing.T) {
	tc := newTestClient(t)
	code, _ := tc.get("/reports/archive")
	expectStatus(t, "archive at step 1", code, http.StatusConflict)
	if _, err := os.Stat(tc.ts.outDir); !os.IsNotExist(err) {
		t.Errorf("output dir touched by an incomplete run")
	}
}

func TestReportFileUnknown(t *testing.T) {
	tc := newTestClient(t)
	code, _ := tc.get("/reports/Someone_QLA_Report.pdf")
	expectStatus(t, "unknown report", code, http.StatusNotFound)
}

func TestRosterTemplateDownload(t *testing.T) {
	tc := newTestClient(t)
	code, body := tc.get("/roster/template")
	expectStatus(t, "template", code, http.StatusOK)
	if body != "name,current_grade,target_grade\nJohn Doe,C,B\nJane Smith,B,A\n" {
		t.Errorf("template = %q", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	tc := newTestClient(t)
	code, body := tc.get("/healthz")
	expectStatus(t, "healthz", code, http.StatusOK)
	if strings.TrimSpace(body) != "ok" {
		t.Errorf("healthz body = %q", body)
	}
	code, body = tc.get("/metrics")
	expectStatus(t, "metrics", code, http.StatusOK)
	if !strings.Contains(body, "qla_sessions_active") {
		t.Errorf("metrics missing session gauge")
	}
}

// completeWizard takes the client to the generate step with one student
// scoring mark out of 10 on a single Algebra question.
func (tc *testClient) completeWizard(name string, mark int) {
	tc.t.Helper()
	tc.advanceToScores()
	tc.get("/")
	code, _ := tc.upload("name,current_grade,target_grade\n" + name + ",B,A\n")
	expectStatus(tc.t, "upload", code, http.StatusSeeOther)
	tc.get("/")
	code, _ = tc.post("/scores", url.Values{"s_0_1_1": {strconv.Itoa(mark)}})
	expectStatus(tc.t, "scores", code, http.StatusSeeOther)
	code, _ = tc.get("/")
	expectStatus(tc.t, "generate", code, http.StatusOK)
}

func TestTemplateDownloadKeepsUploadForm(t *testing.T) {
	tc := newTestClient(t)
	tc.advanceToScores()
	tc.get("/")
	before := tc.cookie(csrfCookieName)

	code, _ := tc.get("/roster/template")
	expectStatus(t, "template", code, http.StatusOK)
	if after := tc.cookie(csrfCookieName); after != before {
		t.Errorf("template download replaced the CSRF cookie")
	}

	code, _ = tc.upload("name,current_grade,target_grade\nJane Smith,B,A\n")
	expectStatus(t, "upload after template download", code, http.StatusSeeOther)
}

func TestDownloadsThenReset(t *testing.T) {
	tc := newTestClient(t)
	tc.completeWizard("Jane Smith", 8)

	code, _ := tc.get("/reports/archive")
	expectStatus(t, "archive", code, http.StatusOK)
	code, _ = tc.get("/reports/Jane_Smith_QLA_Report.pdf")
	expectStatus(t, "report file", code, http.StatusOK)

	code, _ = tc.post("/reset", nil)
	expectStatus(t, "reset after downloads", code, http.StatusSeeOther)
}

func TestSessionsHaveSeparateReports(t *testing.T) {
	ts := newTestServer(t)
	a := ts.newClient(t)
	b := ts.newClient(t)
	a.completeWizard("Jane Smith", 8)
	b.completeWizard("Jane Smith", 2)

	if a.reportDir() == b.reportDir() {
		t.Fatal("sessions share a report directory")
	}
	if _, err := os.Stat(filepath.Join(a.reportDir(), "Jane_Smith_QLA_Report.pdf")); err != nil {
		t.Fatalf("second session's run removed the first session's report: %v", err)
	}

	_, pdfA := a.get("/reports/Jane_Smith_QLA_Report.pdf")
	_, pdfB := b.get("/reports/Jane_Smith_QLA_Report.pdf")
	if pdfA == pdfB {
		t.Error("both sessions downloaded the same report")
	}
	for _, tt := range []struct {
		c    *testClient
		body string
	}{
		{a, pdfA},
		{b, pdfB},
	} {
		onDisk, err := os.ReadFile(filepath.Join(tt.c.reportDir(), "Jane_Smith_QLA_Report.pdf"))
		if err != nil {
			t.Fatal(err)
		}
		if string(onDisk) != tt.body {
			t.Errorf("download differs from the session's own report")
		}
	}

	code, _ := a.post("/reset", nil)
	expectStatus(t, "reset", code, http.StatusSeeOther)
	if _, err := os.Stat(b.reportDir()); err != nil {
		t.Errorf("resetting one session removed another's reports: %v", err)
	}
}

func TestCleanupRemovesExpiredOutput(t *testing.T) {
	ts := newTestServer(t)
	id, err := ts.h.store.CreateSession(wizard.New(), -time.Minute)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	dir := ts.h.sessionDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Jane_Smith_QLA_Report.pdf"), []byte("%PDF-"), 0o644); err != nil {
		t.Fatal(err)
	}

	ts.h.CleanupSessions()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expired session output still present: %v", err)
	}
}
