package trace

const (
	// 幂等协调器的 Span 属性键
	AttrIdemKey      = "idem.key"
	AttrIdemOutcome  = "idem.outcome"
	AttrIdemLockMode = "idem.lock_mode"
)

// SpanNameIdemPerform 幂等执行的 Span 名称
const SpanNameIdemPerform = "idem.perform"

// InstrumentationName 本模块创建 Tracer 时使用的名称
const InstrumentationName = "github.com/ceyewan/onetake"
