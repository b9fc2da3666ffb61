// cmd/integrity/main.go
// Exacting producer/consumer integrity test for circbuf and the uartx RX path.
//
// Run 1 (ring): one goroutine pushes a deterministic pattern straight into a
// circbuf.RingBuffer, another pops and verifies every byte.
// Run 2 (uart): the pattern is fed onto a simulated 16550 receive line; an
// interrupt goroutine drains the FIFO into the driver ring and the foreground
// reads it back with ReadBlocking.
//
// Both producers retry the tail a short Push/Feed refused, so any gap or
// reordering shows up as a mismatch.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/jangala-dev/tinygo-circbuf/circbuf"
	"github.com/jangala-dev/tinygo-circbuf/uartx"
)

var log = logging.Logger("integrity")

/*** Tunables ***/
const (
	defaultBytes   = 256 * 1024 // bytes per run
	timeoutPerTest = 20 * time.Second

	// I/O chunking and diagnostics:
	defaultPush    = 14 // bytes per Push burst (ISR batch size)
	defaultPop     = 16 // bytes per Pop/read
	contextRadius  = 16 // surrounding bytes shown on mismatch (before/after pivot)
	extraFollowing = 64 // additional bytes to read and print after the first mismatch
)

/*** Patterns (deterministic) ***/
func patternA(i int) byte { return byte((i*31 + 0x55) & 0xFF) }
func patternB(i int) byte { return byte((i*17 + 0xA6) & 0xFF) }

// recvFunc reads at least one byte into p or fails.
type recvFunc func(ctx context.Context, p []byte) (int, error)

func main() {
	total := flag.Int("bytes", defaultBytes, "bytes per run")
	pushChunk := flag.Int("push-chunk", defaultPush, "bytes per producer burst")
	popChunk := flag.Int("pop-chunk", defaultPop, "bytes per consumer read")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	if err := logging.SetLogLevel("integrity", *level); err != nil {
		log.Errorf("log level: %v", err)
		os.Exit(2)
	}
	if *pushChunk <= 0 || *popChunk <= 0 || *total <= 0 {
		log.Errorf("bytes and chunk sizes must be positive")
		os.Exit(2)
	}

	fmt.Println("circbuf integrity test")
	fmt.Printf("ring size = %d  bytes/run = %d  push = %d  pop = %d\n", circbuf.Size, *total, *pushChunk, *popChunk)

	pass, fail := 0, 0
	report := func(name, err string) {
		if err == "" {
			fmt.Println("[PASS]", name)
			pass++
		} else {
			fmt.Printf("[FAIL] %s: %s\n", name, err)
			fail++
		}
	}

	report("ring push/pop", runRing(*total, *pushChunk, *popChunk))
	report("uart rx path", runUART(*total, *popChunk))

	fmt.Printf("\nSummary\n  passed = %d\n  failed = %d\n", pass, fail)
	if fail != 0 {
		os.Exit(1)
	}
}

/*** Test runners ***/

func runRing(n, pushChunk, popChunk int) string {
	rb := circbuf.NewRingBuffer()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutPerTest)
	defer cancel()

	go func() {
		buf := make([]byte, pushChunk)
		short := 0
		for i := 0; i < n && ctx.Err() == nil; {
			k := min(pushChunk, n-i)
			for j := 0; j < k; j++ {
				buf[j] = patternA(i + j)
			}
			m := rb.Push(buf[:k])
			if m < k {
				short++
				runtime.Gosched()
			}
			i += m
		}
		log.Debugw("producer done", "short_pushes", short)
	}()

	recv := func(ctx context.Context, p []byte) (int, error) {
		for {
			if m := rb.Pop(p); m > 0 {
				return m, nil
			}
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			runtime.Gosched()
		}
	}
	return recvAndCheckStream(ctx, recv, patternA, n, popChunk, contextRadius)
}

func runUART(n, popChunk int) string {
	bus := uartx.NewSimBus(nil)
	u := uartx.New(bus)
	if err := u.Configure(uartx.Config{}); err != nil {
		return err.Error()
	}
	defer u.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutPerTest)
	defer cancel()

	// Sender: the remote end of the line. A full FIFO holds it off, as
	// hardware flow control would.
	go func() {
		for i := 0; i < n && ctx.Err() == nil; {
			if bus.Feed(patternB(i)) == 1 {
				i++
				continue
			}
			runtime.Gosched()
		}
	}()

	// Interrupt context: service the UART whenever the ring can take a full
	// batch, so nothing is dropped.
	go func() {
		for ctx.Err() == nil {
			if bus.IRQ() && u.Buffer.Free() >= uartx.RxBatch {
				u.HandleInterrupt()
				continue
			}
			runtime.Gosched()
		}
	}()

	msg := recvAndCheckStream(ctx, u.ReadBlocking, patternB, n, popChunk, contextRadius)
	s := u.Stats()
	log.Infow("uart stats", "isr", s.ISRCount, "bytes", s.ISRBytes, "max_drain", s.ISRMaxDrain,
		"drops", s.RingDrops, "overruns", s.ErrOverrun, "spurious", s.SpuriousWakes)
	if msg == "" && s.RingDrops != 0 {
		return "ring dropped bytes"
	}
	return msg
}

/*** Integrity check with diagnostics ***/

// recvAndCheckStream reads exactly n bytes and compares each byte against gen(i).
// On the first mismatch it prints a hex dump of surrounding expected/actual
// context, then prints the next extraFollowing bytes.
func recvAndCheckStream(ctx context.Context, recv recvFunc, gen func(int) byte, n, chunk, radius int) string {
	buf := make([]byte, chunk)
	received := 0

	for received < n {
		k := min(n-received, len(buf))
		m, err := recv(ctx, buf[:k])
		if err != nil {
			log.Warnf("receive stopped at %d/%d: %v", received, n, err)
			return "timeout"
		}

		for i := 0; i < m; i++ {
			if buf[i] == gen(received+i) {
				continue
			}
			off := received + i
			fmt.Println("First mismatch at offset", off)
			printContext(gen, off, buf[:m], i, radius)

			following := append([]byte(nil), buf[i+1:m]...)
			tmp := make([]byte, chunk)
			for len(following) < extraFollowing && off+1+len(following) < n {
				mm, err2 := recv(ctx, tmp[:min(len(tmp), extraFollowing-len(following))])
				if err2 != nil {
					break
				}
				following = append(following, tmp[:mm]...)
			}
			printFollowing(off, following)
			return "integrity mismatch"
		}

		received += m
	}

	return ""
}

/*** Context dump ***/

func printContext(gen func(int) byte, absOffset int, gotChunk []byte, rel int, radius int) {
	start := max(absOffset-radius, 0)
	end := absOffset + radius + 1

	exp := make([]byte, end-start)
	act := make([]byte, end-start)
	base := absOffset - rel
	for i := range exp {
		exp[i] = gen(start + i)
		// Align "actual" to the same window; bytes not in this chunk stay zero.
		if idx := start + i - base; idx >= 0 && idx < len(gotChunk) {
			act[i] = gotChunk[idx]
		}
	}

	fmt.Printf("Context (hex): bytes %d to %d\n", start, end-1)
	fmt.Printf(" exp:%s\n", hexRow(exp, -1))
	fmt.Printf(" act:%s\n", hexRow(act, absOffset-start))
}

// hexRow renders b as space-separated hex pairs, bracketing b[pivot].
func hexRow(b []byte, pivot int) string {
	var sb strings.Builder
	for i, v := range b {
		if i == pivot {
			fmt.Fprintf(&sb, "[%02X]", v)
		} else {
			fmt.Fprintf(&sb, " %02X", v)
		}
	}
	return sb.String()
}

func printFollowing(mismatchOffset int, following []byte) {
	fmt.Printf("Following bytes actually received after mismatch (next %d bytes):\n", len(following))
	if len(following) == 0 {
		fmt.Println(" <none>")
		return
	}
	for i := 0; i < len(following); i += 16 {
		end := min(i+16, len(following))
		fmt.Printf("  %08x: % X\n", mismatchOffset+1+i, following[i:end])
	}
}
