package decompose

import (
	"context"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/ports"
)

// Static returns the same landing-page decomposition for every instruction.
// Used for demos and local chains where no model is configured.
type Static struct {
	Result entity.Decomposition
}

var _ ports.Decomposer = Static{}

// LandingPage is the default Static result.
var LandingPage = entity.Decomposition{
	Step1: "Write persuasive landing page copy for a productivity SaaS aimed at startups: headline, value proposition, three main features with their benefits, customer testimonials and a strong call to action. Informative, encouraging tone, around 600 words.",
	Step2: "Design a minimalist, professional landing page from the provided copy. Produce a high-fidelity mockup with headline, feature highlights, testimonials and call to action in a green and white palette. Deliver a Figma file or high resolution images.",
	Step3: "Implement the landing page design as a responsive website in HTML, CSS and JavaScript, optimised for every device, with smooth scrolling and interactive elements. Deploy it and provide the live URL.",
}

func NewStatic() Static {
	return Static{Result: LandingPage}
}

func (s Static) Decompose(context.Context, string) (entity.Decomposition, error) {
	return s.Result, nil
}
