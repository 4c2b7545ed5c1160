package meter

import sr "github.com/ineyio/searchrouter"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ sr.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnDispatch(sr.DispatchEvent) {}
func (m *NoopMeter) OnResult(sr.ResultEvent)     {}
