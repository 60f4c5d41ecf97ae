package workflow

import "fmt"

// Default persona identifiers
const (
	PersonaCommercial = "ccc" // commercial strategy companion
	PersonaMarketing  = "mcc" // marketing companion
)

// Built-in mode identifiers
const (
	ModeProposalBuilder = "proposal_builder"
	ModeAccountReview   = "account_review"
	ModeDealStrategy    = "deal_strategy"
	ModeCampaignPlanner = "campaign_planner"
	ModeContentCalendar = "content_calendar"
)

// DefaultWorkflows returns the built-in workflow definitions keyed by
// persona id. Most modes are linear chains; deal_strategy branches after
// qualification and converges on a shared summary stage.
func DefaultWorkflows() map[string][]*Workflow {
	return map[string][]*Workflow{
		PersonaCommercial: {
			proposalBuilder(),
			accountReview(),
			dealStrategy(),
		},
		PersonaMarketing: {
			campaignPlanner(),
			contentCalendar(),
		},
	}
}

func proposalBuilder() *Workflow {
	return mustWorkflow(ModeProposalBuilder, "clarify",
		[]*Stage{
			{
				ID:             "clarify",
				Label:          "Clarify requirements",
				Description:    "Capture the client's needs, constraints and success criteria before drafting.",
				AllowedActions: []string{"clarify_requirements"},
				NextStages:     []string{"draft"},
			},
			{
				ID:             "draft",
				Label:          "Draft proposal",
				Description:    "Produce a first full draft of the proposal from the clarified requirements.",
				AllowedActions: []string{"generate_draft_proposal"},
				NextStages:     []string{"refine"},
			},
			{
				ID:             "refine",
				Label:          "Refine proposal",
				Description:    "Incorporate feedback and tighten the draft into a client-ready document.",
				AllowedActions: []string{"refine_proposal"},
				NextStages:     []string{"finalise"},
			},
			{
				ID:          "finalise",
				Label:       "Finalised",
				Description: "The proposal is complete and ready to send.",
				Terminal:    true,
			},
		},
		map[string]string{
			"clarify_requirements":    "draft",
			"generate_draft_proposal": "refine",
			"refine_proposal":         "finalise",
		})
}

func accountReview() *Workflow {
	return mustWorkflow(ModeAccountReview, "gather",
		[]*Stage{
			{
				ID:             "gather",
				Label:          "Gather context",
				Description:    "Collect account history, stakeholders and open commitments.",
				AllowedActions: []string{"summarise_account"},
				NextStages:     []string{"assess"},
			},
			{
				ID:             "assess",
				Label:          "Assess health",
				Description:    "Evaluate account health, risks and growth opportunities.",
				AllowedActions: []string{"draft_recommendations"},
				NextStages:     []string{"recommend"},
			},
			{
				ID:          "recommend",
				Label:       "Recommendations",
				Description: "A prioritised set of account actions is ready.",
				Terminal:    true,
			},
		},
		map[string]string{
			"summarise_account":     "assess",
			"draft_recommendations": "recommend",
		})
}

// dealStrategy is the one built-in workflow that genuinely branches: the
// qualification stage offers two paths which converge on a shared summary.
func dealStrategy() *Workflow {
	return mustWorkflow(ModeDealStrategy, "qualify",
		[]*Stage{
			{
				ID:             "qualify",
				Label:          "Qualify the deal",
				Description:    "Understand the opportunity and choose an approach.",
				AllowedActions: []string{"assess_competitive_bid", "assess_partnership_play"},
				NextStages:     []string{"competitive_plan", "partnership_plan"},
			},
			{
				ID:             "competitive_plan",
				Label:          "Competitive bid plan",
				Description:    "Build a plan to win the deal against named competitors.",
				AllowedActions: []string{"finalise_strategy"},
				NextStages:     []string{"summary"},
			},
			{
				ID:             "partnership_plan",
				Label:          "Partnership play plan",
				Description:    "Build a plan to win the deal through a partner-led motion.",
				AllowedActions: []string{"finalise_strategy"},
				NextStages:     []string{"summary"},
			},
			{
				ID:          "summary",
				Label:       "Strategy summary",
				Description: "The agreed deal strategy is ready to execute.",
				Terminal:    true,
			},
		},
		map[string]string{
			"assess_competitive_bid":  "competitive_plan",
			"assess_partnership_play": "partnership_plan",
			"finalise_strategy":       "summary",
		})
}

func campaignPlanner() *Workflow {
	return mustWorkflow(ModeCampaignPlanner, "brief",
		[]*Stage{
			{
				ID:             "brief",
				Label:          "Capture brief",
				Description:    "Capture campaign goals, audience and budget.",
				AllowedActions: []string{"capture_brief"},
				NextStages:     []string{"ideate"},
			},
			{
				ID:             "ideate",
				Label:          "Develop concepts",
				Description:    "Generate and shortlist campaign concepts against the brief.",
				AllowedActions: []string{"develop_concepts"},
				NextStages:     []string{"plan"},
			},
			{
				ID:             "plan",
				Label:          "Build plan",
				Description:    "Turn the chosen concept into a channel plan with timings.",
				AllowedActions: []string{"build_plan"},
				NextStages:     []string{"finalise"},
			},
			{
				ID:          "finalise",
				Label:       "Finalised",
				Description: "The campaign plan is complete.",
				Terminal:    true,
			},
		},
		map[string]string{
			"capture_brief":    "ideate",
			"develop_concepts": "plan",
			"build_plan":       "finalise",
		})
}

func contentCalendar() *Workflow {
	return mustWorkflow(ModeContentCalendar, "scope",
		[]*Stage{
			{
				ID:             "scope",
				Label:          "Define scope",
				Description:    "Agree the period, channels and content themes to cover.",
				AllowedActions: []string{"define_scope"},
				NextStages:     []string{"draft_calendar"},
			},
			{
				ID:             "draft_calendar",
				Label:          "Draft calendar",
				Description:    "Lay out the content calendar for the agreed scope.",
				AllowedActions: []string{"finalise_calendar"},
				NextStages:     []string{"finalise"},
			},
			{
				ID:          "finalise",
				Label:       "Finalised",
				Description: "The content calendar is complete.",
				Terminal:    true,
			},
		},
		map[string]string{
			"define_scope":      "draft_calendar",
			"finalise_calendar": "finalise",
		})
}

func mustWorkflow(mode, initial string, stages []*Stage, actions map[string]string) *Workflow {
	wf, err := NewWorkflow(mode, initial, stages, actions)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in workflow %q: %v", mode, err))
	}
	return wf
}
