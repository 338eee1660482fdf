package ingestion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/lexium-ai/lexium/internal/logger"
)

// HelperKind selects which out-of-process extractor to invoke.
type HelperKind string

const (
	HelperPDF HelperKind = "pdf"
	HelperOCR HelperKind = "ocr"
)

// HelperResult is the JSON document a helper prints on stdout on clean exit.
type HelperResult struct {
	Success    bool    `json:"success"`
	Text       string  `json:"text,omitempty"`
	PageCount  int     `json:"page_count,omitempty"`
	CharCount  int     `json:"char_count,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Method     string  `json:"method,omitempty"`
	Error      string  `json:"error,omitempty"`
	TimedOut   bool    `json:"-"`
}

// HelperRunner is the capability boundary around helper-process spawning.
// Tests swap in a scripted fake so the extraction state machines never touch
// a real subprocess.
type HelperRunner interface {
	Run(ctx context.Context, kind HelperKind, payload []byte, timeout time.Duration) HelperResult
}

// ProcessRunner spawns the Python helper scripts. Raw bytes travel base64 on
// stdin rather than through a temp file, so concurrent ingestion never races
// on the filesystem. The helper answers with a single JSON object on stdout.
type ProcessRunner struct {
	python  string
	scripts map[HelperKind]string
	log     *logger.Logger
}

func NewProcessRunner(python string, pdfScript, ocrScript string, log *logger.Logger) *ProcessRunner {
	return &ProcessRunner{
		python: python,
		scripts: map[HelperKind]string{
			HelperPDF: pdfScript,
			HelperOCR: ocrScript,
		},
		log: log.With("component", "helper"),
	}
}

// Run executes one helper invocation. It never returns an error: a non-zero
// exit, malformed JSON, missing output or timeout all come back uniformly as
// a failed HelperResult. A timed-out helper is killed, never leaked.
func (r *ProcessRunner) Run(ctx context.Context, kind HelperKind, payload []byte, timeout time.Duration) HelperResult {
	script, ok := r.scripts[kind]
	if !ok {
		return HelperResult{Success: false, Error: fmt.Sprintf("unknown helper kind %q", kind)}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.python, script, "--stdin")
	cmd.Stdin = strings.NewReader(base64.StdEncoding.EncodeToString(payload))
	// Give the process a moment to die on cancellation before SIGKILL.
	cmd.WaitDelay = 3 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)

	if runCtx.Err() == context.DeadlineExceeded {
		r.log.Warn("helper timed out", "kind", kind, "timeout", timeout)
		return HelperResult{
			Success:  false,
			TimedOut: true,
			Error:    fmt.Sprintf("%s helper timed out after %s", kind, timeout),
		}
	}

	if err != nil {
		return HelperResult{
			Success: false,
			Error:   fmt.Sprintf("%s helper exited abnormally: %v: %s", kind, err, firstLine(stderr.String())),
		}
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return HelperResult{Success: false, Error: fmt.Sprintf("%s helper produced no output", kind)}
	}

	var res HelperResult
	if jsonErr := json.Unmarshal(out, &res); jsonErr != nil {
		return HelperResult{
			Success: false,
			Error:   fmt.Sprintf("%s helper output is not valid JSON: %v", kind, jsonErr),
		}
	}

	r.log.Debug("helper finished", "kind", kind, "success", res.Success, "method", res.Method, "elapsed", elapsed)
	return res
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

var _ HelperRunner = (*ProcessRunner)(nil)
