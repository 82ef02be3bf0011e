// Package runtime manages crew subprocess execution and lifecycle.
package runtime

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kdkiss/CrewAI-Command-Center/internal/broadcast"
	"github.com/kdkiss/CrewAI-Command-Center/internal/domain"
	"github.com/kdkiss/CrewAI-Command-Center/internal/policy"
	"github.com/kdkiss/CrewAI-Command-Center/internal/storage"
)

const cleanupInterval = 30 * time.Second

type handle struct {
	process   Process
	processID string
}

// Runtime starts, tracks, and stops crew subprocesses.
type Runtime struct {
	storage     *storage.Storage
	broadcaster *broadcast.Broadcaster
	notifier    broadcast.Notifier
	policy      *policy.Engine
	record      broadcast.RecordFunc

	mu      sync.Mutex
	running map[string]*handle

	cleanupMu      sync.Mutex
	cleanupStarted bool

	spawn    func(argv []string, dir string, env []string) (Process, error)
	lookPath func(name string) (string, error)
	environ  func() []string
}

func New(store *storage.Storage, broadcaster *broadcast.Broadcaster, notifier broadcast.Notifier, engine *policy.Engine, record broadcast.RecordFunc) *Runtime {
	return &Runtime{
		storage:     store,
		broadcaster: broadcaster,
		notifier:    notifier,
		policy:      engine,
		record:      record,
		running:     make(map[string]*handle),
		spawn:       startProcess,
		lookPath:    exec.LookPath,
		environ:     os.Environ,
	}
}

// RunningIDs returns the ids of currently running crews.
func (r *Runtime) RunningIDs() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make(map[string]bool, len(r.running))
	for id := range r.running {
		ids[id] = true
	}
	return ids
}

// Start launches a crew subprocess and returns its process id. The caller
// provided inputs become uppercased environment variables of the subprocess.
func (r *Runtime) Start(ctx context.Context, crewID string, inputs map[string]any) (string, error) {
	normalizedID, err := storage.NormalizeCrewID(crewID)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if _, exists := r.running[normalizedID]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("crew %s is already running", normalizedID)
	}
	// Reserve the slot so concurrent starts of the same crew fail fast.
	r.running[normalizedID] = &handle{}
	r.mu.Unlock()

	processID, err := r.launch(ctx, normalizedID, inputs)
	if err != nil {
		r.mu.Lock()
		delete(r.running, normalizedID)
		r.mu.Unlock()
		return "", err
	}
	return processID, nil
}

func (r *Runtime) launch(ctx context.Context, normalizedID string, inputs map[string]any) (string, error) {
	crewDir, pkgDir, _, err := r.storage.ResolveExistingConfigDir(normalizedID)
	if err != nil {
		return "", err
	}

	srcDir := filepath.Join(crewDir, "src")
	mainPy := filepath.Join(pkgDir, "main.py")
	if _, err := os.Stat(mainPy); err != nil {
		return "", fmt.Errorf("invalid crew directory structure for %s: main.py not found in package directory %s", normalizedID, pkgDir)
	}

	if r.policy != nil {
		decision, reason, err := r.policy.Evaluate(ctx, map[string]any{
			"crew_id": normalizedID,
			"inputs":  inputs,
		})
		if err != nil {
			return "", fmt.Errorf("launch policy evaluation failed for %s: %w", normalizedID, err)
		}
		if decision != "allow" {
			if reason == "" {
				reason = decision
			}
			return "", fmt.Errorf("launch of crew %s blocked by policy: %s", normalizedID, reason)
		}
	}

	env := map[string]string{}
	for _, kv := range r.environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	crewEnv, err := r.storage.EnvFileValues(crewDir)
	if err != nil {
		return "", err
	}
	for k, v := range crewEnv {
		env[k] = v
	}
	env["PYTHONUNBUFFERED"] = "1"
	for key, value := range inputs {
		env[strings.ToUpper(key)] = fmt.Sprintf("%v", value)
	}

	var argv []string
	var workingDir string
	if _, err := r.lookPath("uv"); err == nil {
		relMain, relErr := filepath.Rel(crewDir, mainPy)
		if relErr != nil {
			relMain = mainPy
		}
		argv = []string{"uv", "run", "python", relMain}
		workingDir = crewDir
	} else {
		relMain, relErr := filepath.Rel(pkgDir, mainPy)
		if relErr != nil {
			relMain = mainPy
		}
		argv = []string{"python3", "-u", relMain}
		workingDir = pkgDir
		env["PYTHONPATH"] = srcDir + string(os.PathListSeparator) + env["PYTHONPATH"]
	}

	log.Printf("runtime: executing command: %s", strings.Join(argv, " "))
	log.Printf("runtime: working directory: %s", workingDir)
	log.Printf("runtime: environment (partial): %v", redactedEnv(env))

	proc, err := r.spawn(argv, workingDir, envSlice(env))
	if err != nil {
		return "", fmt.Errorf("failed to launch crew %s: %w", normalizedID, err)
	}
	processID := strconv.Itoa(proc.PID())

	r.mu.Lock()
	r.running[normalizedID] = &handle{process: proc, processID: processID}
	r.mu.Unlock()

	payload := map[string]any{
		"crew_id":    normalizedID,
		"process_id": processID,
		"status":     "started",
	}
	if r.record != nil {
		r.record(string(domain.EventTypeCrewStarted), payload)
	}
	if err := r.notifier.Emit(string(domain.EventTypeCrewStarted), payload); err != nil {
		log.Printf("runtime: error emitting crew_started for %s: %v", normalizedID, err)
	}

	go r.broadcaster.StreamProcessLogs(context.Background(), normalizedID, processID,
		proc.Stdout(), proc.Stderr(), proc.Wait,
		func(code int) { r.handleExit(normalizedID, processID, code) })

	return processID, nil
}

// Stop signals a running crew to terminate. It never fails: stopping an
// unknown or already-exited crew is a logged no-op, and a failed terminate
// escalates to kill.
func (r *Runtime) Stop(crewID string) {
	normalizedID, err := storage.NormalizeCrewID(crewID)
	if err != nil {
		log.Printf("runtime: stop request with invalid crew id %q: %v", crewID, err)
		return
	}

	r.mu.Lock()
	tracked := r.running[normalizedID]
	r.mu.Unlock()

	if tracked == nil {
		log.Printf("runtime: no running crew found with ID: %s", normalizedID)
		return
	}
	proc := tracked.process
	if proc == nil {
		log.Printf("runtime: no process found for crew: %s", normalizedID)
		return
	}

	if code := proc.ExitCode(); code != nil {
		log.Printf("runtime: process for crew %s already terminated with code %d", normalizedID, *code)
		return
	}

	log.Printf("runtime: terminating crew %s (pid=%d)", normalizedID, proc.PID())
	if err := proc.Terminate(); err != nil {
		log.Printf("runtime: terminate failed for crew %s: %v; attempting kill", normalizedID, err)
		if err := proc.Kill(); err != nil {
			log.Printf("runtime: kill failed for crew %s: %v", normalizedID, err)
		}
	}
}

func (r *Runtime) handleExit(crewID, processID string, exitCode int) {
	r.mu.Lock()
	delete(r.running, crewID)
	r.mu.Unlock()

	payload := map[string]any{
		"crew_id":    crewID,
		"process_id": processID,
		"exit_code":  exitCode,
		"status":     "stopped",
	}
	if r.record != nil {
		r.record(string(domain.EventTypeCrewStopped), payload)
	}
	if err := r.notifier.Emit(string(domain.EventTypeCrewStopped), payload); err != nil {
		log.Printf("runtime: error emitting crew_stopped for %s: %v", crewID, err)
	}

	crew, err := r.storage.LoadCrew(crewID, r.RunningIDs())
	if err != nil {
		return
	}
	if err := r.notifier.Emit("crew_updated", crew); err != nil {
		log.Printf("runtime: error emitting crew update for %s: %v", crewID, err)
	}
}

// EnsureCleanupScheduled starts the periodic broadcaster cleanup loop once.
func (r *Runtime) EnsureCleanupScheduled(ctx context.Context) {
	r.cleanupMu.Lock()
	defer r.cleanupMu.Unlock()
	if r.cleanupStarted {
		return
	}
	r.cleanupStarted = true

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.broadcaster.Cleanup()
			}
		}
	}()
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

var sensitiveEnvTokens = []string{"KEY", "TOKEN", "PASSWORD", "SECRET"}

func redactedEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		upper := strings.ToUpper(k)
		sensitive := false
		for _, token := range sensitiveEnvTokens {
			if strings.Contains(upper, token) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			out[k] = v
		}
	}
	return out
}
