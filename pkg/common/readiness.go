package common

import "github.com/OmegaNetwork-source/omega-bridge/pkg/readiness"

const (
	ReadinessSolanaPolling readiness.Component = "solanaPolling"
	ReadinessOmegaSyncing  readiness.Component = "omegaSyncing"
	ReadinessProcessor     readiness.Component = "processor"
)
