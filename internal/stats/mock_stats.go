package stats

// MockStatsUpdater is a no-op StatsProvider for tests.
type MockStatsUpdater struct{}

func (m *MockStatsUpdater) Incr(name string) {}

func (m *MockStatsUpdater) Decr(name string) {}

func (m *MockStatsUpdater) Set(name string, value int64) {}

func (m *MockStatsUpdater) RegisterMetric(name string) {}

func (m *MockStatsUpdater) Run() {}
