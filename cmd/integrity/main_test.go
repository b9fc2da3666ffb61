package main

import (
	"context"
	"testing"
	"time"
)

func TestRunRing_Passes(t *testing.T) {
	for _, c := range []struct{ push, pop int }{{14, 16}, {1, 1}, {31, 7}, {64, 3}} {
		if msg := runRing(20000, c.push, c.pop); msg != "" {
			t.Fatalf("push=%d pop=%d: %s", c.push, c.pop, msg)
		}
	}
}

func TestRunUART_Passes(t *testing.T) {
	if msg := runUART(20000, 16); msg != "" {
		t.Fatalf("uart run: %s", msg)
	}
}

func TestRecvAndCheckStream_ReportsMismatch(t *testing.T) {
	stream := make([]byte, 100)
	for i := range stream {
		stream[i] = patternA(i)
	}
	stream[40] ^= 0xFF

	pos := 0
	recv := func(_ context.Context, p []byte) (int, error) {
		if pos >= len(stream) {
			return 0, context.DeadlineExceeded
		}
		m := copy(p, stream[pos:])
		pos += m
		return m, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if msg := recvAndCheckStream(ctx, recv, patternA, len(stream), 16, contextRadius); msg != "integrity mismatch" {
		t.Fatalf("got %q; want integrity mismatch", msg)
	}
}

func TestRecvAndCheckStream_Timeout(t *testing.T) {
	recv := func(ctx context.Context, p []byte) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if msg := recvAndCheckStream(ctx, recv, patternB, 10, 4, contextRadius); msg != "timeout" {
		t.Fatalf("got %q; want timeout", msg)
	}
}

func TestHexRow_BracketsPivot(t *testing.T) {
	if got, want := hexRow([]byte{0x00, 0xA6, 0x1F}, 1), " 00[A6] 1F"; got != want {
		t.Fatalf("hexRow = %q; want %q", got, want)
	}
	if got, want := hexRow([]byte{0x55}, -1), " 55"; got != want {
		t.Fatalf("hexRow = %q; want %q", got, want)
	}
}
