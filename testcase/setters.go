package testcase

import "github.com/google/uuid"

// SetName returns an UpdateSetter that sets the test case's name.
func SetName(name string) UpdateSetter {
	return func(tc *TestCase) error {
		if name == "" {
			return ErrInvalidTestCaseName
		}
		tc.Name = name
		return nil
	}
}

// SetDescription returns an UpdateSetter that sets the test case's description.
func SetDescription(description string) UpdateSetter {
	return func(tc *TestCase) error {
		tc.Description = description
		return nil
	}
}

// SetModule returns an UpdateSetter that moves the test case into a module.
// A nil moduleID detaches it.
func SetModule(moduleID *uuid.UUID) UpdateSetter {
	return func(tc *TestCase) error {
		tc.ModuleID = moduleID
		return nil
	}
}

// SetSteps returns an UpdateSetter that replaces the test case's steps.
func SetSteps(steps []Step) UpdateSetter {
	return func(tc *TestCase) error {
		replaced := make([]Step, len(steps))
		for i, step := range steps {
			step.ID = uuid.Nil
			step.CaseID = tc.ID
			replaced[i] = step
		}
		tc.Steps = replaced
		return nil
	}
}
