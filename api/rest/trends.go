package rest

// Chart series shown on the dashboards. They are fixed sample data, not
// computed from activity.

type monthlyPoint struct {
	Month   string `json:"month"`
	Farmers int    `json:"farmers,omitempty"`
	Quests  int    `json:"quests,omitempty"`
	Score   int    `json:"score"`
}

var sustainabilityTrend = []monthlyPoint{
	{Month: "Jan", Score: 45},
	{Month: "Feb", Score: 52},
	{Month: "Mar", Score: 58},
	{Month: "Apr", Score: 65},
	{Month: "May", Score: 72},
	{Month: "Jun", Score: 78},
}

var monthlyGrowth = []monthlyPoint{
	{Month: "Jan", Farmers: 180, Quests: 45, Score: 62},
	{Month: "Feb", Farmers: 195, Quests: 58, Score: 64},
	{Month: "Mar", Farmers: 210, Quests: 72, Score: 66},
	{Month: "Apr", Farmers: 225, Quests: 89, Score: 67},
	{Month: "May", Farmers: 235, Quests: 104, Score: 68},
	{Month: "Jun", Farmers: 245, Quests: 87, Score: 68},
}
