// Package doctors holds the fixed catalog of AI specialist personas a
// consultation can be started with.
package doctors

import "strings"

// Agent is one catalog entry. It is stored verbatim as the session's
// selected doctor.
type Agent struct {
	ID                   int    `json:"id"`
	Specialist           string `json:"specialist"`
	Description          string `json:"description,omitempty"`
	Image                string `json:"image,omitempty"`
	AgentPrompt          string `json:"agentPrompt,omitempty"`
	VoiceID              string `json:"voiceId,omitempty"`
	SubscriptionRequired bool   `json:"subscriptionRequired,omitempty"`
}

// DefaultSpecialist is offered when the caller does not pick one.
const DefaultSpecialist = "General Physician"

var catalog = []Agent{
	{
		ID:          1,
		Specialist:  "General Physician",
		Description: "Helps with everyday health concerns and common symptoms.",
		Image:       "/doctor1.png",
		AgentPrompt: "You are a friendly General Physician AI. Greet the user and quickly ask what symptoms they are experiencing. Keep responses short and helpful.",
		VoiceID:     "will",
	},
	{
		ID:                   2,
		Specialist:           "Pediatrician",
		Description:          "Expert in children's health, from babies to teens.",
		Image:                "/doctor2.png",
		AgentPrompt:          "You are a kind Pediatrician AI. Ask brief questions about the child's health and share quick, safe suggestions.",
		VoiceID:              "chris",
		SubscriptionRequired: true,
	},
	{
		ID:                   3,
		Specialist:           "Dermatologist",
		Description:          "Handles skin issues like rashes, acne, or infections.",
		Image:                "/doctor3.png",
		AgentPrompt:          "You are a knowledgeable Dermatologist AI. Ask short questions about the skin issue and give simple, clear advice.",
		VoiceID:              "sarge",
		SubscriptionRequired: true,
	},
	{
		ID:                   4,
		Specialist:           "Psychologist",
		Description:          "Supports mental health and emotional well-being.",
		Image:                "/doctor4.png",
		AgentPrompt:          "You are a caring Psychologist AI. Ask how the user is feeling emotionally and give short, supportive tips.",
		VoiceID:              "susan",
		SubscriptionRequired: true,
	},
	{
		ID:                   5,
		Specialist:           "Nutritionist",
		Description:          "Provides advice on healthy eating and weight management.",
		Image:                "/doctor5.png",
		AgentPrompt:          "You are a motivating Nutritionist AI. Ask about current diet or goals and suggest quick, healthy tips.",
		VoiceID:              "eileen",
		SubscriptionRequired: true,
	},
	{
		ID:                   6,
		Specialist:           "Cardiologist",
		Description:          "Focuses on heart health and blood pressure issues.",
		Image:                "/doctor6.png",
		AgentPrompt:          "You are a calm Cardiologist AI. Ask about heart symptoms and offer brief, helpful advice.",
		VoiceID:              "charlotte",
		SubscriptionRequired: true,
	},
	{
		ID:                   7,
		Specialist:           "ENT Specialist",
		Description:          "Treats ear, nose, and throat-related problems.",
		Image:                "/doctor7.png",
		AgentPrompt:          "You are a friendly ENT AI. Ask quickly about ENT symptoms and give simple, clear suggestions.",
		VoiceID:              "ayla",
		SubscriptionRequired: true,
	},
	{
		ID:                   8,
		Specialist:           "Orthopedic",
		Description:          "Helps with bone, joint, and muscle pain.",
		Image:                "/doctor8.png",
		AgentPrompt:          "You are an understanding Orthopedic AI. Ask where the pain is and give short, supportive advice.",
		VoiceID:              "aaliyah",
		SubscriptionRequired: true,
	},
	{
		ID:                   9,
		Specialist:           "Neurologist",
		Description:          "Looks into headaches, dizziness, and nerve-related symptoms.",
		Image:                "/doctor9.png",
		AgentPrompt:          "You are a patient Neurologist AI. Ask about headaches, numbness or dizziness and give short, careful guidance.",
		VoiceID:              "hudson",
		SubscriptionRequired: true,
	},
	{
		ID:                   10,
		Specialist:           "Dentist",
		Description:          "Handles oral hygiene and dental problems.",
		Image:                "/doctor10.png",
		AgentPrompt:          "You are a cheerful Dentist AI. Ask about the dental issue and give quick, calming suggestions.",
		VoiceID:              "atlas",
		SubscriptionRequired: true,
	},
}

// Catalog returns a copy of every catalog entry, ordered by ID.
func Catalog() []Agent {
	out := make([]Agent, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds an entry by specialist name (case-insensitive).
func Lookup(specialist string) (Agent, bool) {
	specialist = strings.TrimSpace(specialist)
	for _, a := range catalog {
		if strings.EqualFold(a.Specialist, specialist) {
			return a, true
		}
	}
	return Agent{}, false
}
