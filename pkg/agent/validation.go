// Copyright 2025 The Mnemosyne Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"strings"

	"github.com/mnemosyne-project/mnemosyne/pkg/work"
)

// vagueTerms are the fixed trigger words that mark a requirement vague.
var vagueTerms = []string{"quickly", "just", "simple", "easy", "whatever"}

// detailCategories maps each of the five cue-word categories a
// well-specified plan description should hit to the indicator words used
// to detect their presence.
var detailCategories = []struct {
	name       string
	indicators []string
}{
	{"what", []string{"add", "create", "build", "implement", "develop"}},
	{"why", []string{"because", "to", "for", "need", "require", "goal", "purpose"}},
	{"how", []string{"using", "with", "via", "through", "by"}},
	{"constraints", []string{"must", "should", "cannot", "within", "limit", "requirement"}},
	{"scope", []string{"only", "all", "some", "specific", "following", "include"}},
}

// PlanValidation is the result of validating a WorkPlan before the
// tool-use loop begins. NeedsClarification is set when 3 or more of the
// five cue-word categories are absent from the description, the one
// condition treated as an outright validation failure rather than a
// warning.
type PlanValidation struct {
	Valid              bool
	NeedsClarification bool
	Issues             []string
	Questions          []string
}

// ValidatePlan requires a non-empty description, known phase, a stated
// success criterion and tech stack; warns on brief (<10 words) or vague
// descriptions; fails (returning a structured question list) if 3 or
// more of the five cue-word categories are absent.
func ValidatePlan(plan work.Plan) PlanValidation {
	var issues, questions []string

	if strings.TrimSpace(plan.Description) == "" {
		issues = append(issues, "missing description")
		questions = append(questions, "What is the goal of this work?")
	}
	if len(plan.TechStack) == 0 {
		issues = append(issues, "tech stack not specified")
		questions = append(questions, "What tech stack / technologies should be used?")
	}
	if len(plan.SuccessCriteria) == 0 {
		issues = append(issues, "success criteria not defined")
		questions = append(questions, "How will we know when this is complete?")
	}
	if plan.Phase != "" && !work.ValidPhases[plan.Phase] {
		issues = append(issues, "unknown phase: "+string(plan.Phase))
	}

	desc := plan.Description
	lower := strings.ToLower(desc)

	for _, term := range vagueTerms {
		if strings.Contains(lower, term) {
			issues = append(issues, "vague requirement: '"+term+"'")
			questions = append(questions, "Please clarify what '"+term+"' means in this context")
		}
	}

	wordCount := len(strings.Fields(desc))
	if wordCount < 10 {
		issues = append(issues, "requirement too brief")
		questions = append(questions, "Please provide more details about what needs to be built")
	}

	var missing []string
	for _, cat := range detailCategories {
		if !anyIndicatorPresent(lower, cat.indicators) {
			missing = append(missing, cat.name)
		}
	}
	needsClarification := len(missing) >= 3
	if needsClarification {
		issues = append(issues, "prompt lacks detail in: "+strings.Join(missing, ", "))
		questions = append(questions,
			"What specifically needs to be built? (what)",
			"Why is this needed? (purpose)",
			"How should it be implemented? (approach)",
			"Are there any constraints or requirements? (constraints)",
		)
	}

	return PlanValidation{
		Valid:              len(issues) == 0,
		NeedsClarification: needsClarification,
		Issues:             issues,
		Questions:          questions,
	}
}

func anyIndicatorPresent(lower string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
