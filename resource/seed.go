package resource

import (
	"time"

	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/game/quiz"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DefaultAccounts is the built-in roster. The admin signs in with admin123,
// everyone else with demo123.
func DefaultAccounts() []player.Account {
	return []player.Account{
		{User: player.User{
			ID: "admin", Username: "admin", Name: "Admin User", Role: player.RoleAdmin,
			Panchayat: "Central Office", SustainabilityScore: 100, Level: 10, TotalPoints: 5000,
		}, Password: "admin123"},
		{User: player.User{
			ID: "farmer1", Username: "farmer1", Name: "Ravi Kumar", Role: player.RoleFarmer,
			Panchayat: "Thiruvalla", SustainabilityScore: 78, Level: 5, TotalPoints: 1560,
			Badges: []player.Badge{
				{ID: "eco-warrior", Name: "Eco Warrior", Description: "Completed 10 sustainable farming quests", Icon: "🌱", Tier: player.TierGold, AwardedAt: day(2024, 1, 15)},
				{ID: "water-saver", Name: "Water Saver", Description: "Implemented water conservation techniques", Icon: "💧", Tier: player.TierSilver, AwardedAt: day(2024, 2, 20)},
			},
		}, Password: "demo123"},
		{User: player.User{
			ID: "farmer2", Username: "farmer2", Name: "Priya Nair", Role: player.RoleFarmer,
			Panchayat: "Kumbakonam", SustainabilityScore: 85, Level: 6, TotalPoints: 1870,
			Badges: []player.Badge{
				{ID: "organic-champion", Name: "Organic Champion", Description: "Achieved 100% organic farming certification", Icon: "🏆", Tier: player.TierGold, AwardedAt: day(2024, 1, 10)},
			},
		}, Password: "demo123"},
		{User: player.User{
			ID: "farmer3", Username: "farmer3", Name: "Suresh Menon", Role: player.RoleFarmer,
			Panchayat: "Palakkad", SustainabilityScore: 62, Level: 3, TotalPoints: 920,
			Badges: []player.Badge{
				{ID: "beginner", Name: "Green Beginner", Description: "Started sustainable farming journey", Icon: "🌿", Tier: player.TierBronze, AwardedAt: day(2024, 3, 1)},
			},
		}, Password: "demo123"},
		{User: player.User{
			ID: "farmer4", Username: "farmer4", Name: "Maya Krishnan", Role: player.RoleFarmer,
			Panchayat: "Alappuzha", SustainabilityScore: 73, Level: 5, TotalPoints: 1420,
		}, Password: "demo123"},
		{User: player.User{
			ID: "farmer5", Username: "farmer5", Name: "Anitha Thomas", Role: player.RoleFarmer,
			Panchayat: "Kottayam", SustainabilityScore: 58, Level: 3, TotalPoints: 840,
		}, Password: "demo123"},
	}
}

// DefaultQuests is the built-in quest catalog.
func DefaultQuests() []quest.Quest {
	return []quest.Quest{
		{
			ID: "bio-pesticide", Title: "Use Bio-Pesticides",
			Description: "Replace chemical pesticides with organic alternatives to protect beneficial insects and soil health.",
			Category:    quest.CategoryOrganic, Difficulty: quest.DifficultyMedium, Points: 250, DurationDays: 14, Icon: "🐛",
			Requirements: []string{"Own farmland", "Basic organic knowledge"},
			Steps: []quest.Step{
				{ID: "research", Title: "Research Bio-Pesticides", Description: "Learn about different types of bio-pesticides suitable for your crops"},
				{ID: "purchase", Title: "Purchase Organic Materials", Description: "Buy neem oil, beneficial bacteria, or prepare homemade solutions"},
				{ID: "apply", Title: "Apply Bio-Pesticides", Description: "Apply the bio-pesticides following recommended guidelines"},
				{ID: "monitor", Title: "Monitor Results", Description: "Track pest reduction and crop health over 2 weeks"},
			},
		},
		{
			ID: "mulching-banana", Title: "Mulching Banana Fields",
			Description: "Implement mulching techniques in banana cultivation to retain moisture and improve soil health.",
			Category:    quest.CategorySoil, Difficulty: quest.DifficultyEasy, Points: 150, DurationDays: 7, Icon: "🍌",
			Requirements: []string{"Banana cultivation", "Access to organic mulch materials"},
			Steps: []quest.Step{
				{ID: "prepare", Title: "Prepare Mulch Material", Description: "Collect dried leaves, straw, or organic waste for mulching"},
				{ID: "apply-mulch", Title: "Apply Mulch", Description: "Spread mulch around banana plants, maintaining proper thickness"},
				{ID: "maintenance", Title: "Regular Maintenance", Description: "Monitor and replenish mulch as needed"},
			},
		},
		{
			ID: "mixed-cropping", Title: "Mixed Cropping System",
			Description: "Implement companion planting to improve biodiversity and reduce pest problems.",
			Category:    quest.CategoryBiodiversity, Difficulty: quest.DifficultyHard, Points: 400, DurationDays: 30, Icon: "🌾",
			Requirements: []string{"Multiple crop varieties", "Planning expertise"},
			Steps: []quest.Step{
				{ID: "plan", Title: "Plan Crop Combinations", Description: "Design a mixed cropping layout with compatible plants"},
				{ID: "plant", Title: "Plant Mixed Crops", Description: "Plant different crops according to the planned design"},
				{ID: "manage", Title: "Manage Growth", Description: "Monitor and manage the mixed cropping system"},
				{ID: "evaluate", Title: "Evaluate Results", Description: "Assess yield, pest reduction, and soil health improvements"},
			},
		},
		{
			ID: "soil-health", Title: "Soil Health Check",
			Description: "Conduct comprehensive soil testing and implement improvement measures.",
			Category:    quest.CategorySoil, Difficulty: quest.DifficultyMedium, Points: 200, DurationDays: 21, Icon: "🧪",
			Requirements: []string{"Soil testing kit or lab access"},
			Steps: []quest.Step{
				{ID: "collect", Title: "Collect Soil Samples", Description: "Gather soil samples from different areas of your farm"},
				{ID: "test", Title: "Test Soil Properties", Description: "Analyze pH, nutrients, and organic matter content"},
				{ID: "implement", Title: "Implement Improvements", Description: "Apply recommended amendments based on test results"},
			},
		},
		{
			ID: "water-conservation", Title: "Water Conservation Techniques",
			Description: "Install drip irrigation or rainwater harvesting system to conserve water.",
			Category:    quest.CategoryWater, Difficulty: quest.DifficultyHard, Points: 350, DurationDays: 28, Icon: "💧",
			Requirements: []string{"Investment budget", "Technical support"},
			Steps: []quest.Step{
				{ID: "assess", Title: "Assess Water Needs", Description: "Calculate water requirements for your crops"},
				{ID: "install", Title: "Install System", Description: "Set up drip irrigation or rainwater harvesting"},
				{ID: "optimize", Title: "Optimize Usage", Description: "Fine-tune the system for maximum efficiency"},
			},
		},
	}
}

// DefaultQuizzes returns the quest-gating quizzes followed by the
// standalone ones. Quest quizzes leave TimeLimit and Points to the bank
// defaults.
func DefaultQuizzes() []quiz.Quiz {
	return []quiz.Quiz{
		{
			ID: "mulching-banana", QuestID: "mulching-banana", Title: "Mulching Banana Fields", Category: "soil",
			Questions: []quiz.Question{
				{ID: "q1", Question: "What is the primary benefit of mulching in banana cultivation?",
					Options:     []string{"Increases fruit size", "Retains soil moisture and suppresses weeds", "Changes banana color", "Makes harvesting easier"},
					Correct:     1,
					Explanation: "Mulching helps retain soil moisture, suppress weeds, regulate soil temperature, and gradually adds organic matter to improve soil health."},
				{ID: "q2", Question: "What is the ideal thickness for mulch around banana plants?",
					Options:     []string{"1-2 inches", "3-4 inches", "6-8 inches", "10-12 inches"},
					Correct:     1,
					Explanation: "3-4 inches of mulch provides optimal weed suppression and moisture retention without creating pest harboring conditions."},
				{ID: "q3", Question: "Which material is NOT suitable for banana mulching?",
					Options:     []string{"Dried banana leaves", "Coconut coir", "Fresh grass clippings", "Plastic sheets"},
					Correct:     3,
					Explanation: "Plastic sheets prevent air and water circulation to roots. Organic materials like dried leaves, coir, and grass clippings are better choices."},
			},
		},
		{
			ID: "bio-pesticide", QuestID: "bio-pesticide", Title: "Use Bio-Pesticides", Category: "organic",
			Questions: []quiz.Question{
				{ID: "q1", Question: "What makes neem oil effective as a bio-pesticide?",
					Options:     []string{"It kills all insects instantly", "It disrupts insect growth and feeding", "It changes plant color", "It increases soil acidity"},
					Correct:     1,
					Explanation: "Neem oil contains azadirachtin which disrupts insect hormone systems, affecting their growth, feeding, and reproduction without harming beneficial insects when used properly."},
				{ID: "q2", Question: "When is the best time to apply bio-pesticides?",
					Options:     []string{"Midday heat", "Early morning or evening", "During rain", "Any time"},
					Correct:     1,
					Explanation: "Early morning or evening application avoids UV degradation and reduces impact on beneficial insects that are less active during these times."},
			},
		},
		{
			ID: "soil-health", QuestID: "soil-health", Title: "Soil Health Check", Category: "soil",
			Questions: []quiz.Question{
				{ID: "q1", Question: "What pH range is ideal for most crops?",
					Options:     []string{"4.0-5.0", "6.0-7.0", "8.0-9.0", "9.0-10.0"},
					Correct:     1,
					Explanation: "Most crops thrive in slightly acidic to neutral soil (pH 6.0-7.0) where nutrients are most available for plant uptake."},
				{ID: "q2", Question: "What indicates healthy soil organic matter?",
					Options:     []string{"Hard, compacted soil", "Dark color and good structure", "Sandy texture only", "Strong chemical smell"},
					Correct:     1,
					Explanation: "Healthy soil with good organic matter has a dark color, crumbly structure, good water infiltration, and supports active microbial life."},
			},
		},
		{
			ID: "mixed-cropping", QuestID: "mixed-cropping", Title: "Mixed Cropping System", Category: "biodiversity",
			Questions: []quiz.Question{
				{ID: "q1", Question: "What is a key benefit of mixed cropping?",
					Options:     []string{"Easier harvesting", "Reduced biodiversity", "Natural pest control and improved soil health", "Single nutrient usage"},
					Correct:     2,
					Explanation: "Mixed cropping promotes biodiversity, provides natural pest control, improves soil health through varied root systems, and reduces the risk of total crop failure."},
			},
		},
		{
			ID: "water-conservation", QuestID: "water-conservation", Title: "Water Conservation Techniques", Category: "water",
			Questions: []quiz.Question{
				{ID: "q1", Question: "Which irrigation method is most water-efficient?",
					Options:     []string{"Flood irrigation", "Furrow irrigation", "Drip irrigation", "Overhead sprinklers"},
					Correct:     2,
					Explanation: "Drip irrigation delivers water directly to plant roots with minimal evaporation, making it the most water-efficient irrigation method."},
			},
		},
		{
			ID: "soil-health-quiz", Title: "Soil Health & Management", Category: "soil", Difficulty: "medium",
			Description: "Test your knowledge about soil health, nutrients, and sustainable soil management practices.",
			TimeLimit:   15 * time.Minute, Points: 100,
			Questions: []quiz.Question{
				{ID: "q1", Question: "What is the ideal pH range for most crops?",
					Options:     []string{"5.0 - 5.5", "6.0 - 7.0", "7.5 - 8.0", "8.5 - 9.0"},
					Correct:     1,
					Explanation: "Most crops grow best in slightly acidic to neutral soil with pH 6.0-7.0, as nutrients are most available in this range."},
				{ID: "q2", Question: "Which practice helps improve soil organic matter?",
					Options:     []string{"Excessive tillage", "Burning crop residues", "Adding compost", "Using only chemical fertilizers"},
					Correct:     2,
					Explanation: "Adding compost increases organic matter, improves soil structure, and enhances nutrient retention."},
				{ID: "q3", Question: "What indicates healthy soil?",
					Options:     []string{"Hard, compacted texture", "Good water infiltration", "No earthworms present", "Strong chemical smell"},
					Correct:     1,
					Explanation: "Healthy soil has good water infiltration, proper drainage, and active biological life."},
			},
		},
		{
			ID: "organic-farming-quiz", Title: "Organic Farming Practices", Category: "organic", Difficulty: "easy",
			Description: "Learn about organic farming methods, pest control, and sustainable agriculture.",
			TimeLimit:   10 * time.Minute, Points: 75,
			Questions: []quiz.Question{
				{ID: "q1", Question: "Which is an organic pest control method?",
					Options:     []string{"Chemical pesticides", "Neem oil spray", "Synthetic fertilizers", "GMO seeds"},
					Correct:     1,
					Explanation: "Neem oil is a natural, organic pest control method that is safe for beneficial insects when used properly."},
				{ID: "q2", Question: "What is crop rotation beneficial for?",
					Options:     []string{"Reducing soil fertility", "Breaking pest cycles", "Increasing chemical use", "Compacting soil"},
					Correct:     1,
					Explanation: "Crop rotation breaks pest and disease cycles, improves soil health, and reduces the need for chemical inputs."},
			},
		},
		{
			ID: "water-management-quiz", Title: "Water Conservation & Management", Category: "water", Difficulty: "hard",
			Description: "Test your understanding of efficient irrigation and water conservation techniques.",
			TimeLimit:   20 * time.Minute, Points: 150,
			Questions: []quiz.Question{
				{ID: "q1", Question: "Which irrigation method is most water-efficient?",
					Options:     []string{"Flood irrigation", "Furrow irrigation", "Drip irrigation", "Sprinkler irrigation"},
					Correct:     2,
					Explanation: "Drip irrigation delivers water directly to plant roots, minimizing evaporation and water waste."},
				{ID: "q2", Question: "What is mulching primarily used for?",
					Options:     []string{"Increasing water evaporation", "Conserving soil moisture", "Attracting pests", "Hardening soil surface"},
					Correct:     1,
					Explanation: "Mulching conserves soil moisture, suppresses weeds, and regulates soil temperature."},
				{ID: "q3", Question: "When is the best time to water plants?",
					Options:     []string{"Midday when it's hottest", "Early morning", "Late afternoon", "Any time is fine"},
					Correct:     1,
					Explanation: "Early morning watering reduces evaporation losses and allows plants to absorb water before the heat of the day."},
			},
		},
	}
}

// DefaultPosts is the built-in community feed.
func DefaultPosts() []community.Post {
	return []community.Post{
		{
			ID: "1", AuthorID: "farmer1", AuthorName: "Ravi Kumar",
			Content:    "Just completed my mulching quest! 🌱 The banana plants are looking much healthier and the soil stays moist longer. Highly recommend this technique!",
			QuestID:    "mulching-banana", QuestTitle: "Mulching Banana Fields",
			Badges:     []string{"🌱", "💧"}, Likes: 12, CreatedAt: day(2024, 1, 20),
		},
		{
			ID: "2", AuthorID: "farmer2", AuthorName: "Priya Nair",
			Content:   "Excited to start the bio-pesticide quest tomorrow! Has anyone tried neem oil for coconut trees? Looking for tips! 🥥",
			Badges:    []string{"🏆"}, Likes: 8, CreatedAt: day(2024, 1, 21),
			LikedBy:   []string{"farmer1"},
		},
		{
			ID: "3", AuthorID: "farmer3", AuthorName: "Suresh Menon",
			Content:    "My first week with the soil health check quest. The pH results were surprising! Learning so much about my farm. 🧪",
			QuestID:    "soil-health", QuestTitle: "Soil Health Check",
			Badges:     []string{"🌿"}, Likes: 15, CreatedAt: day(2024, 1, 22),
		},
	}
}
