package testmodule

// SetName returns an UpdateSetter that sets the module's name.
func SetName(name string) UpdateSetter {
	return func(m *Module) error {
		if name == "" {
			return ErrInvalidModuleName
		}
		m.Name = name
		return nil
	}
}

// SetDescription returns an UpdateSetter that sets the module's description.
func SetDescription(description string) UpdateSetter {
	return func(m *Module) error {
		m.Description = description
		return nil
	}
}
