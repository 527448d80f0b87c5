package etl

// NewConditionLibrary builds the conditional transform library. Both
// methods take optional true/false results, defaulting to the booleans.
func NewConditionLibrary() Library {
	lib := &methodLibrary{name: "condition"}
	lib.methods = map[string]methodFunc{
		"ifMatchRegex": condIfMatchRegex,
		"ifEqual":      condIfEqual,
	}
	return lib
}

// conditionResults returns the configured true/false results starting at
// argument index offset.
func conditionResults(args []interface{}, offset int) (interface{}, interface{}) {
	trueResult := interface{}(true)
	falseResult := interface{}(false)
	if len(args) > offset {
		trueResult = args[offset]
	}
	if len(args) > offset+1 {
		falseResult = args[offset+1]
	}
	return trueResult, falseResult
}

func condIfMatchRegex(args []interface{}) (interface{}, error) {
	value := argString(arg(args, 0))
	pattern := argString(arg(args, 1))
	trueResult, falseResult := conditionResults(args, 2)

	re, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}

	if re.MatchString(value) {
		return trueResult, nil
	}
	return falseResult, nil
}

func condIfEqual(args []interface{}) (interface{}, error) {
	trueResult, falseResult := conditionResults(args, 2)

	if looseEqual(arg(args, 0), arg(args, 1)) {
		return trueResult, nil
	}
	return falseResult, nil
}
