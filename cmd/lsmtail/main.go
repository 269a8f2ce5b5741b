// Command lsmtail is an interactive shell over an lsmtail database. Its
// cursor commands drive one tailing iterator, so writes made between
// cursor moves show up in later moves.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kezhuw/lsmtail"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".stats"),
	readline.PcItem(".flush"),
	readline.PcItem(".compact"),
	readline.PcItem(".exit"),
	readline.PcItem("PUT"),
	readline.PcItem("GET"),
	readline.PcItem("DELETE"),
	readline.PcItem("SCAN"),
	readline.PcItem("FIRST"),
	readline.PcItem("SEEK"),
	readline.PcItem("NEXT"),
	readline.PcItem("BOUND"),
)

const helpText = `Commands:
  PUT key value       store value under key
  GET key             print value of key
  DELETE key          delete key
  SCAN [start [end]]  print keys in [start, end) as of now
  FIRST               move the tailing cursor to the first key
  SEEK key            move the tailing cursor to the first key >= key
  NEXT [n]            move the tailing cursor forward n keys
  BOUND [key]         set or clear the cursor's exclusive upper bound
  .stats              print file, block cache and superversion counters
  .flush              flush memtables
  .compact            compact all keys
  .exit               leave the shell`

type config struct {
	dir             string
	prefixLength    int
	writeBufferSize int
	cacheOnly       bool
	metricsAddr     string
}

func parseFlags() config {
	var c config
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <dir>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.IntVar(&c.prefixLength, "prefix", 0, "fixed prefix length for prefix seeks, 0 disables")
	flag.IntVar(&c.writeBufferSize, "write-buffer", 0, "memtable size in bytes, 0 for default")
	flag.BoolVar(&c.cacheOnly, "cache-only", false, "cursor reads only memtables and cached blocks")
	flag.StringVar(&c.metricsAddr, "metrics", "", "serve prometheus metrics on this address")
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	c.dir = flag.Arg(0)
	return c
}

func main() {
	c := parseFlags()

	opts := &lsmtail.Options{WriteBufferSize: c.writeBufferSize}
	if c.prefixLength > 0 {
		opts.PrefixExtractor = lsmtail.NewFixedPrefixExtractor(c.prefixLength)
	}
	if c.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		opts.Registerer = reg
		go func() {
			handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
			if err := http.ListenAndServe(c.metricsAddr, handler); err != nil {
				fmt.Fprintf(os.Stderr, "Error serving metrics: %s\n", err)
			}
		}()
	}

	err := session(c.dir, opts, c.cacheOnly, func(sh *shell) error {
		return sh.run(c.dir)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// session opens the database, hands a shell over it to fn and closes both
// before returning.
func session(dir string, opts *lsmtail.Options, cacheOnly bool, fn func(sh *shell) error) error {
	db, err := lsmtail.Open(dir, opts)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	sh := &shell{db: db, out: os.Stdout, cacheOnly: cacheOnly}
	err = fn(sh)
	sh.closeCursor()
	if closeErr := db.Close(); err == nil {
		err = closeErr
	}
	return err
}

type shell struct {
	db        *lsmtail.DB
	out       io.Writer
	cursor    lsmtail.Iterator
	bound     []byte
	cacheOnly bool
}

func (sh *shell) run(dir string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("lsmtail:%s> ", filepath.Base(dir)),
		HistoryFile:     filepath.Join(os.TempDir(), ".lsmtail_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(sh.out, "Enter .help for usage hints.")
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if len(line) == 0 {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if quit := sh.exec(parts); quit {
			return nil
		}
	}
}

func (sh *shell) exec(parts []string) (quit bool) {
	cmd, args := strings.ToUpper(parts[0]), parts[1:]
	var err error
	switch cmd {
	case ".HELP":
		fmt.Fprintln(sh.out, helpText)
	case ".EXIT":
		return true
	case ".STATS":
		sh.stats()
	case ".FLUSH":
		err = sh.db.Flush()
	case ".COMPACT":
		err = sh.db.CompactRange(nil, nil)
	case "PUT":
		if len(args) < 2 {
			fmt.Fprintln(sh.out, "Error: PUT requires key and value arguments")
			return false
		}
		err = sh.db.Put([]byte(args[0]), []byte(strings.Join(args[1:], " ")), nil)
	case "GET":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, "Error: GET requires a key argument")
			return false
		}
		var value []byte
		if value, err = sh.db.Get([]byte(args[0]), nil); err == nil {
			fmt.Fprintf(sh.out, "%s\n", value)
		}
	case "DELETE":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, "Error: DELETE requires a key argument")
			return false
		}
		err = sh.db.Delete([]byte(args[0]), nil)
	case "SCAN":
		err = sh.scan(args)
	case "FIRST":
		sh.move(sh.openCursor().First())
	case "SEEK":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, "Error: SEEK requires a key argument")
			return false
		}
		sh.move(sh.openCursor().Seek([]byte(args[0])))
	case "NEXT":
		err = sh.next(args)
	case "BOUND":
		sh.closeCursor()
		sh.bound = nil
		if len(args) != 0 {
			sh.bound = []byte(args[0])
		}
	default:
		fmt.Fprintf(sh.out, "Unknown command %q, enter .help for usage hints.\n", parts[0])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	return false
}

func (sh *shell) stats() {
	st := sh.db.Stats()
	for level, n := range st.LevelFiles {
		fmt.Fprintf(sh.out, "level %d: %d files\n", level, n)
	}
	fmt.Fprintf(sh.out, "live files: %d, obsolete files: %d\n", st.LiveFiles, st.ObsoleteFiles)
	fmt.Fprintf(sh.out, "block cache: %d hits, %d misses\n", st.BlockCacheHits, st.BlockCacheMisses)
	fmt.Fprintf(sh.out, "superversion: %d\n", st.SuperVersion)
	if sh.cursor != nil {
		value, _ := sh.cursor.Property(lsmtail.PropertySuperVersionNumber)
		fmt.Fprintf(sh.out, "cursor superversion: %s\n", value)
	}
}

func (sh *shell) scan(args []string) error {
	ro := &lsmtail.ReadOptions{}
	if len(args) > 1 {
		ro.IterateUpperBound = []byte(args[1])
	}
	it := sh.db.NewIterator(ro)
	defer it.Close()
	var ok bool
	if len(args) > 0 {
		ok = it.Seek([]byte(args[0]))
	} else {
		ok = it.First()
	}
	n := 0
	for ; ok; ok = it.Next() {
		fmt.Fprintf(sh.out, "%s: %s\n", it.Key(), it.Value())
		n++
	}
	fmt.Fprintf(sh.out, "%d entries\n", n)
	return it.Err()
}

func (sh *shell) openCursor() lsmtail.Iterator {
	if sh.cursor == nil {
		ro := &lsmtail.ReadOptions{Tailing: true, IterateUpperBound: sh.bound}
		if sh.cacheOnly {
			ro.ReadTier = lsmtail.BlockCacheTier
		}
		sh.cursor = sh.db.NewIterator(ro)
	}
	return sh.cursor
}

func (sh *shell) closeCursor() {
	if sh.cursor != nil {
		sh.cursor.Close()
		sh.cursor = nil
	}
}

func (sh *shell) move(ok bool) {
	if ok {
		fmt.Fprintf(sh.out, "%s: %s\n", sh.cursor.Key(), sh.cursor.Value())
		return
	}
	fmt.Fprintf(sh.out, "(invalid, status %s)\n", sh.cursor.Status())
	if err := sh.cursor.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

func (sh *shell) next(args []string) error {
	n := 1
	if len(args) > 0 {
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil || n <= 0 {
			return fmt.Errorf("invalid count %q", args[0])
		}
	}
	if sh.cursor == nil || !sh.cursor.Valid() {
		fmt.Fprintln(sh.out, "(cursor is not positioned, use FIRST or SEEK)")
		return nil
	}
	for i := 0; i < n; i++ {
		ok := sh.cursor.Next()
		sh.move(ok)
		if !ok {
			break
		}
	}
	return nil
}
