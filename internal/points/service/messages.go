package service

import "fmt"

const dailyLimitMessage = "daily points limit reached, try again tomorrow"

func coolingMessage(seconds int64) string {
	return fmt.Sprintf("please wait %d seconds before earning more points", seconds)
}

func earnedMessage(requested, credited int64) string {
	if credited < requested {
		return fmt.Sprintf("earned %d of %d points, daily limit reached", credited, requested)
	}
	return fmt.Sprintf("earned %d points", credited)
}
