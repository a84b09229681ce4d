package metrics

import "github.com/prometheus/client_golang/prometheus"

// TeamCartMetrics counts lifecycle outcomes. A nil receiver is a no-op.
type TeamCartMetrics struct {
	commands  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	swept     *prometheus.CounterVec
}

func NewTeamCartMetrics(reg prometheus.Registerer) *TeamCartMetrics {
	if reg == nil {
		return &TeamCartMetrics{}
	}
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Team cart commands by outcome code.",
	}, []string{"command", "outcome"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cas_conflicts_total",
		Help:      "Compare-and-swap version conflicts observed by the engine.",
	}, []string{"command"})
	swept := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeper_carts_total",
		Help:      "Carts processed by the expiry sweeper by result.",
	}, []string{"result"})
	reg.MustRegister(commands, conflicts, swept)
	return &TeamCartMetrics{
		commands:  commands,
		conflicts: conflicts,
		swept:     swept,
	}
}

// ObserveCommand records the final outcome ("ok" or an error code) of a command.
func (m *TeamCartMetrics) ObserveCommand(command, outcome string) {
	if m == nil || m.commands == nil {
		return
	}
	m.commands.WithLabelValues(normalizeLabel(command), normalizeLabel(outcome)).Inc()
}

func (m *TeamCartMetrics) IncConflict(command string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(command)).Inc()
}

func (m *TeamCartMetrics) IncSwept(result string) {
	if m == nil || m.swept == nil {
		return
	}
	m.swept.WithLabelValues(normalizeLabel(result)).Inc()
}
