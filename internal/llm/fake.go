package llm

import "context"

// Fake is an in-memory Gateway for stage and orchestrator tests. Responses
// are consumed in call order; once exhausted it returns Err (or a default
// error) so a test can assert how a stage behaves once the canned script
// runs out.
type Fake struct {
	Responses []string
	Err       error

	Calls []struct {
		System string
		User   string
	}
}

func (f *Fake) Complete(_ context.Context, system, user string, _ ...CompleteOption) (string, error) {
	f.Calls = append(f.Calls, struct {
		System string
		User   string
	}{System: system, User: user})

	if len(f.Responses) == 0 {
		if f.Err != nil {
			return "", f.Err
		}
		return "", &Error{Message: "fake gateway exhausted"}
	}
	resp := f.Responses[0]
	f.Responses = f.Responses[1:]
	return resp, nil
}
