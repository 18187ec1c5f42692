package rules

// IneffectiveEqualsHashCodeRule flags classes that override exactly one
// of equals(Object) / hashCode() — breaking the contract between them.
type IneffectiveEqualsHashCodeRule struct{}

func (IneffectiveEqualsHashCodeRule) Metadata() Metadata {
	return Metadata{
		ID:          "INEFFECTIVE_EQUALS_HASHCODE",
		Name:        "Ineffective equals/hashCode",
		Description: "Classes with equals without hashCode or vice versa",
	}
}

func (IneffectiveEqualsHashCodeRule) Run(ctx *Context) ([]Result, error) {
	var results []Result
	for _, class := range ctx.AnalysisTargetClasses() {
		hasEquals, hasHashCode := false, false
		for _, method := range class.Methods {
			if method.Name == "equals" && method.Descriptor == "(Ljava/lang/Object;)Z" {
				hasEquals = true
			}
			if method.Name == "hashCode" && method.Descriptor == "()I" {
				hasHashCode = true
			}
		}
		if hasEquals == hasHashCode {
			continue
		}
		var message string
		if hasEquals {
			message = "Class " + class.Name + " overrides equals without hashCode"
		} else {
			message = "Class " + class.Name + " overrides hashCode without equals"
		}
		results = append(results, classResult("INEFFECTIVE_EQUALS_HASHCODE", message, ctx, class))
	}
	return results, nil
}
