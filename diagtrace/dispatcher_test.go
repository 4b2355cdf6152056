// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package diagtrace_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagworks/diag-trace-go/diagtrace"
	"github.com/diagworks/diag-trace-go/diagtrace/mockcollector"
	"github.com/diagworks/diag-trace-go/internal/log"
)

// eventNames pulls the recorded "name" field values out of a collector.
func eventNames(c *mockcollector.Collector) []string {
	var names []string
	for _, ev := range c.Events() {
		for _, f := range ev.Fields {
			if f.Name == "name" {
				names = append(names, f.Value.(string))
			}
		}
	}
	return names
}

func TestSetDefaultNesting(t *testing.T) {
	ca := mockcollector.New()
	cb := mockcollector.New()
	da := diagtrace.NewDispatch(ca)
	db := diagtrace.NewDispatch(cb)

	outer := diagtrace.SetDefault(da)
	diagtrace.GetDefault(func(d *diagtrace.Dispatch) {
		assert.Same(t, ca, d.Collector())
	})

	inner := diagtrace.SetDefault(db)
	diagtrace.GetDefault(func(d *diagtrace.Dispatch) {
		assert.Same(t, cb, d.Collector())
	})

	inner.Close()
	diagtrace.GetDefault(func(d *diagtrace.Dispatch) {
		assert.Same(t, ca, d.Collector())
	})

	outer.Close()
	// Closing twice is fine.
	outer.Close()
}

func TestWithDefaultRestoresOnPanic(t *testing.T) {
	c := mockcollector.New()
	d := diagtrace.NewDispatch(c)

	func() {
		defer func() {
			require.NotNil(t, recover())
		}()
		diagtrace.WithDefault(d, func() {
			diagtrace.GetDefault(func(cur *diagtrace.Dispatch) {
				assert.Same(t, c, cur.Collector())
			})
			panic("unwind")
		})
	}()

	diagtrace.GetDefault(func(cur *diagtrace.Dispatch) {
		assert.NotSame(t, c, cur.Collector())
	})
}

func TestScopeGuardCrossGoroutine(t *testing.T) {
	c := mockcollector.New()
	d := diagtrace.NewDispatch(c)
	guard := diagtrace.SetDefault(d)

	// Recording starts after NewDispatch: its interest rebuild asks every
	// live collector, including those of other tests, and they may log.
	tp := new(log.RecordLogger)
	defer log.UseLogger(tp)()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		guard.Close()
	}()
	wg.Wait()

	// The close was ignored: the scoped default is still installed here.
	diagtrace.GetDefault(func(cur *diagtrace.Dispatch) {
		assert.Same(t, c, cur.Collector())
	})
	logs := tp.Logs()
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[0], "different goroutine")

	guard.Close()
	diagtrace.GetDefault(func(cur *diagtrace.Dispatch) {
		assert.NotSame(t, c, cur.Collector())
	})
}

func TestGlobalScopedRestoredDuringUnwind(t *testing.T) {
	c := mockcollector.New()
	d := diagtrace.NewDispatch(c)

	func() {
		defer func() { _ = recover() }()
		guard := diagtrace.SetGlobalScoped(d)
		defer guard.Close()
		diagtrace.GetDefault(func(cur *diagtrace.Dispatch) {
			assert.Same(t, c, cur.Collector())
		})
		panic("unwind")
	}()

	diagtrace.GetDefault(func(cur *diagtrace.Dispatch) {
		assert.NotSame(t, c, cur.Collector())
	})
}

// TestGlobalDefault is the only test in the module that installs the
// process-global default; everything it needs to observe about that
// irrevocable state is asserted here, including the scoped-override
// scenario and the second-installation error.
func TestGlobalDefault(t *testing.T) {
	site := diagtrace.InfoSite("scoped-override", "diagtrace.test.dispatcher.s3", "name")
	emit := func(name string) {
		f, _ := site.Metadata().FieldByName("name")
		diagtrace.Emit(site, diagtrace.WithValues(diagtrace.Str(f, name)))
	}

	ca := mockcollector.New()
	cb := mockcollector.New()
	da := diagtrace.NewDispatch(ca)
	db := diagtrace.NewDispatch(cb)

	require.NoError(t, diagtrace.SetGlobalDefault(da))

	// e1 arrives at the global default.
	emit("e1")

	// A goroutine-scoped override takes e2 while, concurrently, another
	// goroutine without an override still reaches the global default.
	t2start := make(chan struct{})
	t2done := make(chan struct{})
	go func() {
		defer close(t2done)
		<-t2start
		emit("e3")
	}()

	guard := diagtrace.SetDefault(db)
	emit("e2")
	close(t2start)
	<-t2done
	guard.Close()

	emit("e4")

	assert.ElementsMatch(t, []string{"e1", "e3", "e4"}, eventNames(ca))
	assert.Equal(t, []string{"e2"}, eventNames(cb))

	t.Run("second-install-fails", func(t *testing.T) {
		err := diagtrace.SetGlobalDefault(db)
		assert.ErrorIs(t, err, diagtrace.ErrGlobalDefaultSet)
		// The original default is untouched.
		emit("e5")
		assert.Contains(t, eventNames(ca), "e5")
	})

	t.Run("global-scoped-shadows-default", func(t *testing.T) {
		cc := mockcollector.New()
		dc := diagtrace.NewDispatch(cc)
		guard := diagtrace.SetGlobalScoped(dc)
		emit("e6")
		guard.Close()
		emit("e7")
		assert.Equal(t, []string{"e6"}, eventNames(cc))
		assert.Contains(t, eventNames(ca), "e7")
		assert.NotContains(t, eventNames(ca), "e6")
	})
}

// TestCollectorLogsDuringRegistration covers re-entrancy: a collector
// that emits an event from inside RegisterCallsite resolves the no-op
// dispatcher instead of recursing into itself.
func TestCollectorLogsDuringRegistration(t *testing.T) {
	const target = "diagtrace.test.dispatcher.reentrant"
	noise := diagtrace.InfoSite("registration-noise", target+".noise", "name")

	var c *mockcollector.Collector
	c = mockcollector.New(mockcollector.WithInterest(func(m *diagtrace.Metadata) diagtrace.Interest {
		if m.Target() == target {
			// Emitting from inside registration must not deadlock and
			// must not reach any collector.
			f, _ := noise.Metadata().FieldByName("name")
			diagtrace.Emit(noise, diagtrace.WithValues(diagtrace.Str(f, "from-register")))
		}
		return diagtrace.InterestAlways
	}))
	d := diagtrace.NewDispatch(c)
	defer diagtrace.SetDefault(d).Close()

	site := diagtrace.InfoSite("reentrant", target, "name")
	f, _ := site.Metadata().FieldByName("name")
	diagtrace.Emit(site, diagtrace.WithValues(diagtrace.Str(f, "after-register")))

	assert.NotContains(t, eventNames(c), "from-register")
	assert.Contains(t, eventNames(c), "after-register")
}

func TestNoopDispatch(t *testing.T) {
	d := diagtrace.NoopDispatch()
	assert.True(t, d.IsNoop())
	assert.EqualValues(t, 0, d.ID())
	assert.False(t, d.Enabled(nil))
	assert.True(t, d.NewSpan(nil).IsZero())

	var nild *diagtrace.Dispatch
	assert.True(t, nild.IsNoop())
	assert.NotNil(t, nild.Collector())
}
