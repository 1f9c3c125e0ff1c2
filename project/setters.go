package project

// SetName returns an UpdateSetter that sets the project's name.
func SetName(name string) UpdateSetter {
	return func(p *Project) error {
		if name == "" {
			return ErrInvalidProjectName
		}
		p.Name = name
		return nil
	}
}

// SetDescription returns an UpdateSetter that sets the project's description.
func SetDescription(description string) UpdateSetter {
	return func(p *Project) error {
		p.Description = description
		return nil
	}
}

// SetBaseURL returns an UpdateSetter that sets the URL relative navigation resolves against.
func SetBaseURL(baseURL string) UpdateSetter {
	return func(p *Project) error {
		p.BaseURL = baseURL
		return nil
	}
}

// SetBrowser returns an UpdateSetter that sets the browser kind.
func SetBrowser(browser Browser) UpdateSetter {
	return func(p *Project) error {
		if !browser.IsValid() {
			return ErrInvalidBrowser
		}
		p.Browser = browser
		return nil
	}
}

// SetHeadless returns an UpdateSetter that toggles headless execution.
func SetHeadless(headless bool) UpdateSetter {
	return func(p *Project) error {
		p.Headless = headless
		return nil
	}
}
