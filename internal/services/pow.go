package services

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// PowMaxIteration bounds the hash-prefix search; upstream accepts a
// deterministic error token once this many attempts are exhausted.
const PowMaxIteration = 500000

const (
	chatGPTBaseURL = "https://chatgpt.com"
	sentinelFlowInit = "sora_init"
	sentinelFlowCreate = "sora_2_create_task__auto"
)

var (
	powCores = []int{8, 16, 24, 32}
	powScripts = []string{
		"https://cdn.oaistatic.com/_next/static/cXh69klOLzS0Gy2joLDRS/_ssgManifest.js?dpl=453ebaec0d44c2decab71692e1bfe39be35a24b3",
	}
	powDPL = []string{"prod-f501fe933b3edf57aea882da888e1a544df99840"}
	powNavigatorKeys = []string{
		"registerProtocolHandler−function registerProtocolHandler() { [native code] }",
		"storage−[object StorageManager]",
		"locks−[object LockManager]",
		"appCodeName−Mozilla",
		"permissions−[object Permissions]",
		"webdriver−false",
		"vendor−Google Inc.",
		"mediaDevices−[object MediaDevices]",
		"cookieEnabled−true",
		"product−Gecko",
		"productSub−20030107",
		"hardwareConcurrency−32",
		"onLine−true",
	}
	powDocumentKeys = []string{"_reactListeningo743lnnpvdg", "location"}
	powWindowKeys = []string{
		"0", "window", "self", "document", "name", "location",
		"navigator", "screen", "innerWidth", "innerHeight",
		"localStorage", "sessionStorage", "crypto", "performance",
		"fetch", "setTimeout", "setInterval", "console",
	}
	desktopUserAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	}
)

// HashSHA3_512 computes the SHA3-512 digest of the input bytes.
func HashSHA3_512(input []byte) []byte {
	h := sha3.New512()
	h.Write(input)
	return h.Sum(nil)
}

// HashSHA3_512Hex computes the SHA3-512 digest of the input and hex-encodes it.
func HashSHA3_512Hex(input []byte) string {
	return hex.EncodeToString(HashSHA3_512(input))
}

// powParseTime renders the wall-clock string the upstream fingerprint
// format expects, pinned to US Eastern so it matches real browser clients
// regardless of the host machine's timezone.
func powParseTime() string {
	loc := time.FixedZone("EST", -5*60*60)
	now := time.Now().In(loc)
	return now.Format("Mon Jan 02 2006 15:04:05") + " GMT-0500 (Eastern Standard Time)"
}

func randomUserAgent() string {
	return desktopUserAgents[rand.Intn(len(desktopUserAgents))]
}

// powConfig holds the 18-slot fingerprint array plus the two slots
// (index 3 and 9) the solver recomputes on every iteration.
type powConfig struct {
	slots    []interface{}
	initialJ int
}

// newPowConfig builds a fresh fingerprint config. Slots 3 and 9 are
// placeholders overwritten by the solver per iteration; initialJ is the
// baseline the spec's slot-9 formula (initial_j + ceil((i+1)/30)) is
// computed against, matching the "dynamic counter" slot description.
func newPowConfig(userAgent string) *powConfig {
	screenSizes := []int{1920 + 1080, 2560 + 1440, 1920 + 1200, 2560 + 1600}
	initialJ := rand.Intn(50)

	return &powConfig{
		initialJ: initialJ,
		slots: []interface{}{
			screenSizes[rand.Intn(len(screenSizes))],
			powParseTime(),
			4294705152,
			0, // [3] dynamic: iteration index i
			userAgent,
			powScripts[rand.Intn(len(powScripts))],
			powDPL[rand.Intn(len(powDPL))],
			"en-US",
			"en-US,es-US,en,es",
			0, // [9] dynamic: initialJ + ceil((i+1)/30)
			powNavigatorKeys[rand.Intn(len(powNavigatorKeys))],
			powDocumentKeys[rand.Intn(len(powDocumentKeys))],
			powWindowKeys[rand.Intn(len(powWindowKeys))],
			float64(time.Now().UnixNano()) / 1e6,
			fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
				rand.Uint32(), rand.Uint32()&0xffff, rand.Uint32()&0xffff,
				rand.Uint32()&0xffff, rand.Uint64()&0xffffffffffff),
			"",
			powCores[rand.Intn(len(powCores))],
			float64(time.Now().UnixMilli()) - float64(time.Now().UnixNano())/1e6,
		},
	}
}

// SolvePow searches for a base64-encoded fingerprint array whose
// SHA3-512 hash, concatenated after seed, has a hex-decoded prefix
// lexicographically at or below difficulty. Slot 3 is set to the
// iteration index; slot 9 is initialJ + ceil((i+1)/30), per the upstream
// scheme. Returns (solution, true) on success, or a deterministic
// error token and false once PowMaxIteration is exhausted.
func SolvePow(seed string, difficulty string, cfg *powConfig) (string, bool) {
	diffLen := len(difficulty) / 2
	seedBytes := []byte(seed)
	targetDiff, _ := hex.DecodeString(difficulty)

	part1, _ := json.Marshal(cfg.slots[:3])
	part2, _ := json.Marshal(cfg.slots[4:9])
	part3, _ := json.Marshal(cfg.slots[10:])

	staticPart1 := string(part1[:len(part1)-1]) + ","
	staticPart2 := "," + string(part2[1:len(part2)-1]) + ","
	staticPart3 := "," + string(part3[1:])

	for i := 0; i < PowMaxIteration; i++ {
		dynamicI := fmt.Sprintf("%d", i)
		dynamicJ := fmt.Sprintf("%d", cfg.initialJ+int(math.Ceil(float64(i+1)/30)))

		finalJSON := staticPart1 + dynamicI + staticPart2 + dynamicJ + staticPart3
		b64 := base64.StdEncoding.EncodeToString([]byte(finalJSON))

		hashInput := append(append([]byte{}, seedBytes...), []byte(b64)...)
		hashValue := HashSHA3_512(hashInput)

		if lessOrEqualPrefix(hashValue, targetDiff, diffLen) {
			return b64, true
		}
	}

	errorToken := "wQ8Lk5FbGpA2NcR9dShT6gYjU7VxZ4D" + base64.StdEncoding.EncodeToString([]byte(`"`+seed+`"`))
	return errorToken, false
}

func lessOrEqualPrefix(hash, target []byte, n int) bool {
	for k := 0; k < n && k < len(hash) && k < len(target); k++ {
		if hash[k] > target[k] {
			return false
		}
		if hash[k] < target[k] {
			return true
		}
	}
	return true
}

// GetPowToken produces the initial gAAAAAC-prefixed challenge-endpoint PoW.
func GetPowToken(userAgent string) string {
	cfg := newPowConfig(userAgent)
	seed := fmt.Sprintf("%f", rand.Float64())
	solution, _ := SolvePow(seed, "0fffff", cfg)
	return "gAAAAAC" + solution
}

// BuildSentinelToken assembles the {p,t,c,id,flow} sentinel header from a
// challenge-endpoint response, computing a second gAAAAAB-prefixed PoW
// when the response demands it.
func BuildSentinelToken(flow, reqID, powToken string, resp map[string]interface{}, userAgent string) string {
	finalPowToken := powToken

	if proofofwork, ok := resp["proofofwork"].(map[string]interface{}); ok {
		if required, _ := proofofwork["required"].(bool); required {
			seed, _ := proofofwork["seed"].(string)
			difficulty, _ := proofofwork["difficulty"].(string)
			if seed != "" && difficulty != "" {
				cfg := newPowConfig(userAgent)
				solution, _ := SolvePow(seed, difficulty, cfg)
				finalPowToken = "gAAAAAB" + solution
			}
		}
	}

	if !strings.HasSuffix(finalPowToken, "~S") {
		finalPowToken += "~S"
	}

	turnstileDx := ""
	if turnstile, ok := resp["turnstile"].(map[string]interface{}); ok {
		turnstileDx, _ = turnstile["dx"].(string)
	}
	token, _ := resp["token"].(string)

	payload := map[string]string{
		"p":    finalPowToken,
		"t":    turnstileDx,
		"c":    token,
		"id":   reqID,
		"flow": flow,
	}

	jsonBytes, _ := json.Marshal(payload)
	return string(jsonBytes)
}
