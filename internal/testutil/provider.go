package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"racebet/internal/domain"
	"racebet/internal/infrastructure/provider"
)

// FakeProvider 内存版赛事数据源
type FakeProvider struct {
	mu         sync.Mutex
	sessions   map[domain.SessionKey]*provider.Session
	err        error
	calls      int
	freshCalls int
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{sessions: make(map[domain.SessionKey]*provider.Session)}
}

// AddSession 注册一个场次，end 为零值表示未结束
func (f *FakeProvider) AddSession(key domain.SessionKey, end time.Time, drivers ...domain.DriverNumber) *provider.Session {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := &provider.Session{
		Key:         key,
		Name:        "Race",
		Type:        "Race",
		CountryCode: "ITA",
		Year:        2023,
	}
	if !end.IsZero() {
		e := end
		s.End = &e
	}
	for _, d := range drivers {
		s.Drivers = append(s.Drivers, provider.Driver{Number: d, FullName: fmt.Sprintf("Driver %d", d)})
	}
	f.sessions[key] = s
	return s
}

func (f *FakeProvider) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeProvider) Calls() (total, fresh int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.freshCalls
}

func (f *FakeProvider) Session(_ context.Context, key domain.SessionKey, fresh bool) (*provider.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if fresh {
		f.freshCalls++
	}
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrSessionNotFound, key)
	}
	cp := *s
	return &cp, nil
}

func (f *FakeProvider) Sessions(_ context.Context, q provider.Query, fresh bool) ([]provider.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if fresh {
		f.freshCalls++
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []provider.Session
	for _, s := range f.sessions {
		if q.Year != 0 && s.Year != q.Year {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
