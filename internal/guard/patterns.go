package guard

import "regexp"

// family is a named group of patterns. Only the family name ever
// leaves the package; the matched text does not.
type family struct {
	name     string
	patterns []*regexp.Regexp
}

func (f family) matches(s string) bool {
	for _, p := range f.patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// firstMatch returns the name of the first family matching s.
func firstMatch(families []family, s string) (string, bool) {
	for _, f := range families {
		if f.matches(s) {
			return f.name, true
		}
	}
	return "", false
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

var injectionFamilies = []family{
	{
		name: "instruction-override",
		patterns: compile(
			`(?i)\b(ignore|disregard|forget|override|bypass)\b.{0,40}\b(previous|prior|above|earlier|preceding|former|your|system)\b.{0,20}\b(instructions?|rules?|prompts?|directions?|guidelines?|constraints?)\b`,
			`(?i)\bnew\s+instructions?\s*:`,
		),
	},
	{
		name: "role-reassignment",
		patterns: compile(
			`(?i)\byou\s+are\s+(now|no\s+longer)\s+(an?\s+|the\s+|my\s+)?(assistant|ai|bot|chatbot|model|system|developer|admin(istrator)?|dan|jailbroken|unrestricted|unfiltered|uncensored|evil|different|new|bound|restricted|limited)\b`,
			`(?i)\bfrom\s+now\s+on,?\s+(you|act|respond|behave)\b`,
			`(?i)\b(act|behave|respond)\s+as\s+(if\s+you\s+were\s+)?(an?\s+)?(unrestricted|unfiltered|uncensored|jailbroken|evil)\b`,
			`(?i)\bpretend\s+(to\s+be|you\s+are|that\s+you)\b`,
			`(?i)\b(developer|god|dan|jailbreak|sudo)\s+mode\b`,
		),
	},
	{
		name: "system-prompt-extraction",
		patterns: compile(
			`(?i)\b(reveal|show|print|repeat|output|display|leak|dump|tell\s+me|what\s+(is|are|were))\b.{0,30}\b(system|initial|original|hidden|secret)\s+(prompt|instructions?|message)s?\b`,
			`(?i)\b(repeat|print|output)\b.{0,20}\b(everything|all|text)\s+(above|before)\b`,
		),
	},
	{
		name: "delimiter-injection",
		patterns: compile(
			`(?i)<\|?\s*(im_start|im_end|system|endoftext)\s*\|?>`,
			`(?i)\[/?(INST|SYS)\]`,
			`(?i)<</?SYS>>`,
			`(?im)^\s*(###\s*)?system\s*:`,
			`(?i)</?(system|instructions?)>`,
		),
	},
	{
		name: "encoded-payload",
		patterns: compile(
			`(?i)\b(decode|execute|run|follow|interpret)\b.{0,30}\b(base64|rot13|hex|binary)\b`,
			`(?i)\b(base64|rot13)\s*:\s*[A-Za-z0-9+/=]{16,}`,
		),
	},
	{
		name: "localized-override",
		patterns: compile(
			// Dutch
			`(?i)\b(negeer|vergeet|omzeil)\b.{0,40}\b(vorige|eerdere|bovenstaande|voorgaande|je)\b.{0,20}\b(instructies|regels|opdrachten|richtlijnen)\b`,
			`(?i)\bje\s+bent\s+nu\b`,
			`(?i)\b(toon|geef|herhaal|onthul)\b.{0,30}\bsysteem\s?(prompt|instructies)\b`,
			// German
			`(?i)\b(ignoriere|vergiss|missachte)\b.{0,40}\b(vorherigen|bisherigen|obigen|deine)\b.{0,20}\b(anweisungen|regeln|instruktionen)\b`,
			`(?i)\bdu\s+bist\s+(jetzt|nun)\b`,
			// French
			`(?i)\b(ignore[rz]?|oublie[rz]?)\b.{0,40}\b(instructions|consignes|règles)\s+(précédentes|antérieures)`,
			// Spanish
			`(?i)\b(ignora|olvida)\b.{0,40}\b(instrucciones|reglas)\s+(anteriores|previas)\b`,
		),
	},
}

var topicFamilies = []family{
	{
		name: "weapons",
		patterns: compile(
			`(?i)\b(build|make|assemble|3d[\s-]?print|manufacture|construct)\b.{0,30}\b(bombs?|explosives?|pipe\s*bombs?|firearms?|guns?|silencers?|suppressors?|grenades?|ghost\s+guns?)\b`,
			`(?i)\b(maak|maken|bouw|bouwen)\b.{0,30}\b(bom|bommen|explosieven|vuurwapen|wapen)\b`,
		),
	},
	{
		name: "malware",
		patterns: compile(
			`(?i)\b(write|create|build|code|develop|generate)\b.{0,30}\b(malware|ransomware|keylogger|trojan|virus|worm|botnet|rootkit|spyware)\b`,
			`(?i)\b(schrijf|maak|bouw)\b.{0,30}\b(malware|ransomware|virus|keylogger)\b`,
		),
	},
	{
		name: "drug-synthesis",
		patterns: compile(
			`(?i)\b(synthesi[sz]e|cook|manufacture|make|produce)\b.{0,30}\b(meth|methamphetamine|fentanyl|heroin|cocaine|mdma|lsd)\b`,
			`(?i)\b(maak|maken|produceer|produceren|koken)\b.{0,30}\b(xtc|mdma|speed|crystal\s+meth|cocaïne|heroïne)`,
		),
	},
	{
		name: "self-harm",
		patterns: compile(
			`(?i)\b(how\s+(to|can\s+i|do\s+i)|best\s+way\s+to|ways\s+to)\b.{0,20}\b(kill\s+myself|commit\s+suicide|end\s+my\s+life|hurt\s+myself|harm\s+myself)\b`,
			`(?i)\b(zelfmoord\s+plegen|mezelf\s+(doden|pijn\s+doen|van\s+het\s+leven\s+beroven))\b`,
		),
	},
	{
		name: "identity-fraud",
		patterns: compile(
			`(?i)\b(fake|forge|forged|counterfeit|fraudulent)\b.{0,20}\b(passports?|id\s+cards?|identity|identities|driver'?s\s+licen[sc]es?|ssn|social\s+security)\b`,
			`(?i)\b(steal|stealing|stolen)\b.{0,20}\b(identity|identities)\b`,
			`(?i)\b(vals|valse|vervalst|vervalsen)\b.{0,20}\b(paspoort|identiteitskaart|rijbewijs)\b`,
		),
	},
	{
		name: "hacking",
		patterns: compile(
			`(?i)\b(hack|hacking|break)\s+(into|in\s+to)\b.{0,30}\b(accounts?|servers?|networks?|systems?|email|wifi|databases?|phones?)\b`,
			`(?i)\b(bypass|crack|brute[\s-]?force)\b.{0,20}\b(passwords?|authentication|2fa|mfa|login)\b`,
			`(?i)\bsql\s+injection\s+(attack|payload)s?\b`,
			`(?i)\b(hacken|inbreken)\b.{0,30}\b(account|server|netwerk|systeem)\b`,
		),
	},
}
