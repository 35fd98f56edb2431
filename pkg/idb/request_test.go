package idb

import (
	"context"
	"errors"
	"testing"
)

func TestRequestObserversBeforeCompletion(t *testing.T) {
	req := newRequest[int]()
	if _, err := req.Result(); !errors.Is(err, ErrPending) {
		t.Fatalf("Result while pending: got %v, want ErrPending", err)
	}

	var got []int
	req.OnSuccess(func(v int) { got = append(got, v) }).
		OnSuccess(func(v int) { got = append(got, v*10) }).
		OnError(func(error) { t.Error("OnError called on success") })

	req.resolve(4, nil)
	req.resolve(5, errors.New("ignored"))

	<-req.Done()
	if len(got) != 2 || got[0] != 4 || got[1] != 40 {
		t.Fatalf("observers: got %v, want [4 40]", got)
	}
	if v, err := req.Result(); v != 4 || err != nil {
		t.Fatalf("Result: got %d, %v", v, err)
	}
}

func TestRequestObserversAfterCompletion(t *testing.T) {
	boom := errors.New("boom")
	req := resolvedRequest(0, boom)

	var got error
	req.OnSuccess(func(int) { t.Error("OnSuccess called on failure") }).
		OnError(func(err error) { got = err })
	if got != boom {
		t.Fatalf("OnError: got %v, want boom", got)
	}
	if _, err := req.Wait(context.Background()); err != boom {
		t.Fatalf("Wait: got %v, want boom", err)
	}
}

func TestRequestWaitHonoursContext(t *testing.T) {
	req := newRequest[string]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := req.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait: got %v, want context.Canceled", err)
	}
}

func TestRequestObserversRunBeforeDone(t *testing.T) {
	req := newRequest[int]()
	var seen int
	req.OnSuccess(func(v int) { seen = v })
	go req.resolve(9, nil)
	if _, err := req.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if seen != 9 {
		t.Fatalf("observer had not run when Wait returned: seen %d", seen)
	}
}
