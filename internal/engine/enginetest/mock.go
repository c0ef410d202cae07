// Package enginetest provides a deterministic in-process stand-in for the
// external generation engine, for tests that need the full submit/poll/cancel
// contract without a real engine.
package enginetest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/engine"
)

type refState struct {
	status    engine.PollStatus
	outputs   []engine.Output
	errMsg    string
	pollCount int
	// polls remaining before the ref reports completion
	pollsLeft int
}

// Mock implements engine.Client. Every Submit materializes one artifact from
// a fixed PNG fixture under a collision-free name inside OutputDir, so polls
// can report real, readable output metadata.
type Mock struct {
	mu        sync.Mutex
	outputDir string
	fixture   []byte
	seq       int
	refs      map[string]*refState

	submitCalls int
	submitErr   error
	// default number of polls a ref stays pending before completing
	pollsUntilComplete int
	neverComplete      bool
}

var _ engine.Client = (*Mock)(nil)

// NewMock creates a mock engine writing artifacts under outputDir.
func NewMock(outputDir string) (*Mock, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("enginetest: ensure output dir: %w", err)
	}
	m := &Mock{outputDir: outputDir, refs: make(map[string]*refState)}
	m.fixture = renderFixture()
	return m, nil
}

// renderFixture encodes the fixed 8x8 input fixture every artifact is
// materialized from. Byte-identical across runs.
func renderFixture() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic("enginetest: encode fixture: " + err.Error())
	}
	return buf.Bytes()
}

// Submit materializes the deterministic artifact and records it against the
// returned ref. Subsequent polls report completion with its metadata.
func (m *Mock) Submit(ctx context.Context, wf engine.WorkflowDefinition) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.submitCalls++
	if m.submitErr != nil {
		err := m.submitErr
		m.mu.Unlock()
		return "", err
	}
	m.seq++
	ref := fmt.Sprintf("mock-%04d-%s", m.seq, uuid.NewString()[:8])
	filename := fmt.Sprintf("genonaut_%05d_%s.png", m.seq, uuid.NewString()[:8])
	state := &refState{
		status:    engine.PollPending,
		outputs:   []engine.Output{{Filename: filename, Subfolder: "", Type: "output"}},
		pollsLeft: m.pollsUntilComplete,
	}
	if m.neverComplete {
		state.pollsLeft = -1
	}
	m.refs[ref] = state
	fixture := m.fixture
	m.mu.Unlock()

	// Written outside the lock; the name is already reserved.
	if err := os.WriteFile(filepath.Join(m.outputDir, filename), fixture, 0o644); err != nil {
		return "", engine.Fatalf("write mock artifact: %v", err)
	}
	return ref, nil
}

func (m *Mock) Poll(ctx context.Context, ref string) (*engine.PollResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.refs[ref]
	if !ok {
		return nil, engine.Fatalf("unknown ref %q", ref)
	}
	state.pollCount++

	if state.status == engine.PollPending && state.pollsLeft >= 0 {
		if state.pollsLeft == 0 {
			state.status = engine.PollCompleted
		} else {
			state.pollsLeft--
		}
	}

	res := &engine.PollResult{Status: state.status, Error: state.errMsg}
	if state.status == engine.PollCompleted {
		res.Outputs = append([]engine.Output(nil), state.outputs...)
	}
	return res, nil
}

// Cancel flips the ref to failed-as-cancelled unless it already completed.
func (m *Mock) Cancel(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.refs[ref]
	if !ok {
		return engine.Fatalf("unknown ref %q", ref)
	}
	if state.status != engine.PollCompleted {
		state.status = engine.PollFailed
		state.errMsg = "cancelled"
		state.pollsLeft = -1
	}
	return nil
}

func (m *Mock) QueueInfo(ctx context.Context) (*engine.QueueInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := &engine.QueueInfo{}
	for _, s := range m.refs {
		if s.status == engine.PollPending {
			info.Pending++
		}
	}
	return info, nil
}

// Reset returns the mock to its empty state between test runs. Artifacts on
// disk are left for the caller's temp-dir cleanup.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs = make(map[string]*refState)
	m.seq = 0
	m.submitCalls = 0
	m.submitErr = nil
	m.pollsUntilComplete = 0
	m.neverComplete = false
}

// FailSubmitWith makes every subsequent Submit return err. Pass nil to clear.
func (m *Mock) FailSubmitWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErr = err
}

// CompleteAfterPolls keeps new refs pending for n polls before completing.
func (m *Mock) CompleteAfterPolls(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollsUntilComplete = n
}

// NeverComplete makes new refs stay pending forever, for timeout tests.
func (m *Mock) NeverComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.neverComplete = true
}

// ForceComplete flips a ref to completed regardless of prior state. Used to
// emulate an engine finishing work after the job was already cancelled.
func (m *Mock) ForceComplete(ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.refs[ref]
	if !ok {
		return fmt.Errorf("enginetest: unknown ref %q", ref)
	}
	state.status = engine.PollCompleted
	state.errMsg = ""
	return nil
}

// SubmitCalls reports how many times Submit ran, including failed attempts.
func (m *Mock) SubmitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCalls
}

// PollCount reports how many times ref was polled.
func (m *Mock) PollCount(ref string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.refs[ref]; ok {
		return s.pollCount
	}
	return 0
}

// Outputs returns the recorded artifact metadata for ref.
func (m *Mock) Outputs(ref string) []engine.Output {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.refs[ref]; ok {
		return append([]engine.Output(nil), s.outputs...)
	}
	return nil
}

// OutputDir is where artifacts are materialized; hand it to the organizer as
// the engine output root.
func (m *Mock) OutputDir() string { return m.outputDir }

// Fixture exposes the fixture bytes for content assertions.
func (m *Mock) Fixture() []byte { return append([]byte(nil), m.fixture...) }
