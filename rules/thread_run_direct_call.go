package rules

import "github.com/exoego/inspequte-sub000/ir"

// ThreadRunDirectCallRule flags calling Thread.run() directly, which runs
// the target synchronously on the caller's thread instead of starting a
// new one. The one legitimate shape — a run() override invoking
// super.run() — is exempted.
type ThreadRunDirectCallRule struct{}

func (ThreadRunDirectCallRule) Metadata() Metadata {
	return Metadata{
		ID:          "THREAD_RUN_DIRECT_CALL",
		Name:        "Direct Thread.run() call",
		Description: "Thread.run() called directly instead of start()",
	}
}

func (ThreadRunDirectCallRule) Run(ctx *Context) ([]Result, error) {
	var results []Result
	for _, class := range ctx.AnalysisTargetClasses() {
		for _, method := range class.Methods {
			for _, call := range method.Calls {
				if call.Owner != "java/lang/Thread" || call.Name != "run" || call.Descriptor != "()V" {
					continue
				}
				if method.Name == "run" && method.Descriptor == "()V" && call.Kind == ir.Special {
					continue
				}
				message := "Avoid direct Thread.run() in " + class.Name + "." + method.Name + method.Descriptor + "; call start() for asynchronous execution."
				results = append(results, methodResult("THREAD_RUN_DIRECT_CALL", message, ctx, class, method, call.Offset))
			}
		}
	}
	return results, nil
}
