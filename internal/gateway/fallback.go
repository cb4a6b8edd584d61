package gateway

import "strings"

// Rule maps a set of keywords to a canned reply.
type Rule struct {
	Topic    string
	Keywords []string
	Reply    string
}

// DefaultReply is served when no rule matches.
const DefaultReply = "I understand you're asking about a health-related topic. While I'd like to provide specific information, I'm currently operating in fallback mode due to technical limitations. For reliable health information, consider consulting healthcare resources like the CDC or WHO websites, or speaking with a healthcare professional. Remember that online information should complement, not replace, professional medical advice."

// DefaultRules is the health topic table in priority order.
var DefaultRules = []Rule{
	{
		Topic:    "flu",
		Keywords: []string{"flu", "cold", "symptoms"},
		Reply:    "Common flu symptoms include fever, cough, sore throat, body aches, and fatigue. For most people, the flu resolves on its own with rest and hydration. However, if symptoms are severe or persistent, it's important to consult with a healthcare professional. Remember that this information is educational and not a substitute for medical advice.",
	},
	{
		Topic:    "covid",
		Keywords: []string{"covid", "coronavirus"},
		Reply:    "COVID-19 symptoms may include fever, cough, fatigue, loss of taste or smell, and difficulty breathing. If you're experiencing symptoms or have been exposed, consider getting tested and follow local health guidelines. For specific medical advice, please consult with a healthcare professional. This information is provided for educational purposes only.",
	},
	{
		Topic:    "headache",
		Keywords: []string{"headache", "migraine"},
		Reply:    "Headaches can be caused by various factors including stress, dehydration, lack of sleep, or underlying health conditions. For occasional headaches, rest and over-the-counter pain relievers may help. If you experience severe, persistent, or unusual headaches, please consult with a healthcare provider. This information is educational and not a substitute for professional medical advice.",
	},
	{
		Topic:    "nutrition",
		Keywords: []string{"diet", "nutrition", "food"},
		Reply:    "A balanced diet typically includes a variety of fruits, vegetables, whole grains, lean proteins, and healthy fats. Proper nutrition is important for overall health and may help prevent various chronic diseases. For personalized dietary advice, consider consulting with a registered dietitian. Remember that this information is educational and not a substitute for professional guidance.",
	},
	{
		Topic:    "exercise",
		Keywords: []string{"exercise", "workout", "fitness"},
		Reply:    "Regular physical activity offers numerous health benefits, including improved cardiovascular health, stronger muscles and bones, and better mental health. The general recommendation is at least 150 minutes of moderate-intensity exercise per week. Before starting a new exercise routine, especially if you have health concerns, consider consulting with a healthcare provider. This information is provided for educational purposes only.",
	},
	{
		Topic:    "mental_health",
		Keywords: []string{"anxiety", "stress", "depression"},
		Reply:    "Mental health conditions like anxiety and depression are common and treatable. Strategies that may help manage symptoms include regular exercise, adequate sleep, mindfulness practices, and connecting with supportive people. If you're struggling with mental health concerns, I encourage you to reach out to a mental health professional. This information is educational and not a substitute for professional care.",
	},
	{
		Topic:    "sleep",
		Keywords: []string{"sleep", "insomnia"},
		Reply:    "Good sleep hygiene practices include maintaining a regular sleep schedule, creating a restful environment, limiting screen time before bed, and avoiding caffeine and alcohol close to bedtime. If you're experiencing persistent sleep difficulties, consider discussing this with a healthcare provider. This information is provided for educational purposes and is not a substitute for medical advice.",
	},
}

// Fallback is a deterministic keyword responder. It never touches the network.
type Fallback struct {
	rules        []Rule
	defaultReply string
}

// NewFallback builds a responder over rules. Keywords are matched lower-cased.
func NewFallback(rules []Rule, defaultReply string) *Fallback {
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		normalized[i] = Rule{Topic: r.Topic, Keywords: kws, Reply: r.Reply}
	}
	return &Fallback{rules: normalized, defaultReply: defaultReply}
}

// DefaultFallback returns the responder over DefaultRules.
func DefaultFallback() *Fallback {
	return NewFallback(DefaultRules, DefaultReply)
}

// Match returns the first rule with a keyword contained in text.
func (f *Fallback) Match(text string) (Rule, bool) {
	lower := strings.ToLower(text)
	for _, r := range f.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r, true
			}
		}
	}
	return Rule{}, false
}

// DefaultTopic labels replies served when no rule matches.
const DefaultTopic = "default"

// Reply returns the matched template and its topic, or the default reply
// under DefaultTopic.
func (f *Fallback) Reply(text string) (reply, topic string) {
	if r, ok := f.Match(text); ok {
		return r.Reply, r.Topic
	}
	return f.defaultReply, DefaultTopic
}
