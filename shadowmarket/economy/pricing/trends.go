package pricing

import (
	"math/rand"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
)

// Pools are the candidate attributes a daily trend is drawn from, one
// value per category per calendar day.
type Pools struct {
	Pose    []string
	Costume []string
	Body    []string
}

func DefaultPools() Pools {
	return Pools{
		Pose: []string{
			"standing", "sitting", "lying", "kneeling", "squatting",
			"leaning_forward", "arms_up", "crossed_arms", "hand_on_hip",
			"peace_sign",
		},
		Costume: []string{
			"school_uniform", "maid", "swimsuit", "kimono", "dress",
			"gothic_lolita", "sailor_collar", "apron", "hoodie", "suit",
		},
		Body: []string{
			"cat_ears", "glasses", "twintails", "ponytail", "ahoge",
			"freckles", "mole", "heterochromia", "fang", "wings",
		},
	}
}

// Merge overlays non-empty override pools onto p.
func (p Pools) Merge(pose, costume, body []string) Pools {
	if len(pose) > 0 {
		p.Pose = pose
	}
	if len(costume) > 0 {
		p.Costume = costume
	}
	if len(body) > 0 {
		p.Body = body
	}
	return p
}

// Sample draws one trend value per category for the given date key.
func (p Pools) Sample(r *rand.Rand, dateKey string) *models.DailyTrend {
	trend := &models.DailyTrend{DateKey: dateKey}
	if len(p.Pose) > 0 {
		trend.Pose = p.Pose[r.Intn(len(p.Pose))]
	}
	if len(p.Costume) > 0 {
		trend.Costume = p.Costume[r.Intn(len(p.Costume))]
	}
	if len(p.Body) > 0 {
		trend.Body = p.Body[r.Intn(len(p.Body))]
	}
	return trend
}
