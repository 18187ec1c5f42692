package rules

// InsecureAPIRule flags call sites to a small set of APIs that are almost
// always a command-injection, reflection-abuse, or arbitrary-class-load
// risk when driven by untrusted input.
type InsecureAPIRule struct{}

func (InsecureAPIRule) Metadata() Metadata {
	return Metadata{
		ID:          "INSECURE_API",
		Name:        "Insecure API usage",
		Description: "Calls to process execution, reflection, or dynamic class loading APIs",
	}
}

type ownerName struct {
	owner string
	name  string
}

var insecureAPIs = map[ownerName]bool{
	{"java/lang/Runtime", "exec"}:                  true,
	{"java/lang/ProcessBuilder", "<init>"}:          true,
	{"java/lang/ProcessBuilder", "start"}:           true,
	{"java/lang/reflect/Method", "invoke"}:          true,
	{"java/lang/reflect/Constructor", "newInstance"}: true,
	{"java/lang/Class", "forName"}:                 true,
}

func (InsecureAPIRule) Run(ctx *Context) ([]Result, error) {
	var results []Result
	for _, class := range ctx.AnalysisTargetClasses() {
		for _, method := range class.Methods {
			for _, call := range method.Calls {
				if !insecureAPIs[ownerName{call.Owner, call.Name}] {
					continue
				}
				message := "Insecure API usage: " + call.Owner + "." + call.Name
				results = append(results, methodResult("INSECURE_API", message, ctx, class, method, call.Offset))
			}
		}
	}
	return results, nil
}
