package procpool

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/codeatlas-dev/codeatlas/internal/cache"
	"github.com/codeatlas-dev/codeatlas/internal/extract"
	"github.com/codeatlas-dev/codeatlas/internal/lang"
	"github.com/codeatlas-dev/codeatlas/internal/parser"
	"github.com/codeatlas-dev/codeatlas/internal/queries"
)

// Runner executes one parse job. Implementations must be safe for
// concurrent use by the pool's workers.
type Runner interface {
	Run(spec JobSpec) (*extract.FileResult, error)
	Close() error
}

// InProcessRunner parses in the calling process. Used for single-process
// mode and tests; a grammar crash takes the whole indexer with it.
type InProcessRunner struct {
	Engine *queries.Engine
	// ASTs, when set, keeps parsed trees across jobs so re-extracting an
	// unchanged file skips the parse. Entries are keyed by path and content
	// hash, so a changed file can never replay a stale tree.
	ASTs *cache.BoundedASTCache
}

func (r *InProcessRunner) Run(spec JobSpec) (*extract.FileResult, error) {
	source, err := os.ReadFile(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", spec.Path, err)
	}
	l := lang.Language(spec.Language)
	if r.ASTs == nil {
		return extract.File(r.Engine, l, spec.RelPath, source)
	}

	key := fmt.Sprintf("%s#%016x", spec.Path, xxh3.Hash(source))
	if tree, cachedLang, ok := r.ASTs.Get(key); ok {
		defer tree.Close()
		if cachedLang == l {
			return extract.FromTree(r.Engine, l, spec.RelPath, tree.RootNode(), source), nil
		}
	}

	tree, err := parser.Parse(l, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", spec.RelPath, err)
	}
	result := extract.FromTree(r.Engine, l, spec.RelPath, tree.RootNode(), source)
	r.ASTs.Put(key, tree, l, int64(len(source)))
	return result, nil
}

func (r *InProcessRunner) Close() error { return nil }

// workerResponse is one line on a worker's stdout.
type workerResponse struct {
	Result *extract.FileResult `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// workerProc is one long-lived OS worker process speaking line-delimited
// JSON: JobSpec in on stdin, workerResponse out on stdout.
type workerProc struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out *bufio.Reader
}

// ProcessRunner distributes jobs to a pool of self-exec'd worker
// processes running the parse-worker subcommand.
type ProcessRunner struct {
	subcommand string
	args       []string
	procs      chan *workerProc

	mu  sync.Mutex
	all []*workerProc
}

// NewProcessRunner spawns size worker processes. subcommand is the CLI
// verb the worker binary reacts to, normally "parse-worker"; args are
// passed through so workers resolve the same grammar set as the parent.
func NewProcessRunner(subcommand string, size int, args ...string) (*ProcessRunner, error) {
	if size < 1 {
		size = 1
	}
	r := &ProcessRunner{
		subcommand: subcommand,
		args:       args,
		procs:      make(chan *workerProc, size),
	}
	for i := 0; i < size; i++ {
		p, err := r.spawn()
		if err != nil {
			r.Close()
			return nil, err
		}
		r.procs <- p
	}
	return r, nil
}

func (r *ProcessRunner) spawn() (*workerProc, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve worker binary: %w", err)
	}
	cmd := exec.Command(self, append([]string{r.subcommand}, r.args...)...)
	cmd.Stderr = os.Stderr
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	p := &workerProc{cmd: cmd, in: in, out: bufio.NewReader(out)}
	r.mu.Lock()
	r.all = append(r.all, p)
	r.mu.Unlock()
	slog.Debug("procpool.worker.spawn", "pid", cmd.Process.Pid)
	return p, nil
}

// Run sends the job to an idle worker process and reads back one response
// line. A dead worker is replaced and the job reported failed; the next
// job gets the fresh process.
func (r *ProcessRunner) Run(spec JobSpec) (*extract.FileResult, error) {
	p := <-r.procs

	result, err := r.exchange(p, spec)
	if err != nil {
		p.in.Close()
		p.cmd.Process.Kill()
		p.cmd.Wait()
		replacement, spawnErr := r.spawn()
		if spawnErr != nil {
			slog.Error("procpool.worker.respawn", "error", spawnErr)
			// Put the dead proc back so the slot count stays stable;
			// the next exchange on it fails fast.
			r.procs <- p
		} else {
			r.procs <- replacement
		}
		return nil, err
	}

	r.procs <- p
	return result, nil
}

func (r *ProcessRunner) exchange(p *workerProc, spec JobSpec) (*extract.FileResult, error) {
	req, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	if _, err := p.in.Write(append(req, '\n')); err != nil {
		return nil, fmt.Errorf("send job to worker: %w", err)
	}
	line, err := p.out.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("worker died parsing %s: %w", spec.RelPath, err)
	}
	var resp workerResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode worker response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("worker: %s", resp.Error)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("worker returned empty response for %s", spec.RelPath)
	}
	return resp.Result, nil
}

// Close terminates every worker process.
func (r *ProcessRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.all {
		p.in.Close()
		p.cmd.Process.Kill()
		p.cmd.Wait()
	}
	r.all = nil
	return nil
}

// WorkerLoop is the body of the parse-worker subcommand: read JobSpec
// lines from in, write workerResponse lines to out, exit on EOF. Grammars
// resolve from the same loader config as the parent process, so dynamically
// loaded languages parse in workers too; the engine is built once per
// process.
func WorkerLoop(in io.Reader, out io.Writer, cfg parser.LoaderConfig) error {
	_, engine, _, err := parser.LoadParsers(cfg)
	if err != nil {
		return fmt.Errorf("worker grammars: %w", err)
	}

	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var spec JobSpec
		if err := json.Unmarshal(scanner.Bytes(), &spec); err != nil {
			if err := enc.Encode(workerResponse{Error: fmt.Sprintf("decode job: %v", err)}); err != nil {
				return err
			}
			continue
		}
		resp := workerResponse{}
		source, err := os.ReadFile(spec.Path)
		if err != nil {
			resp.Error = fmt.Sprintf("read %s: %v", spec.Path, err)
		} else if result, err := extract.File(engine, lang.Language(spec.Language), spec.RelPath, source); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = result
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}
