package region

// cjkKeywords maps CJK region names (and a few well-known cities) to ISO
// codes. Matching is longest-keyword-first.
var cjkKeywords = map[string]string{
	"香港": "HK", "港": "HK", "深港": "HK", "沪港": "HK", "京港": "HK", "广港": "HK",
	"台湾": "TW", "臺灣": "TW", "台灣": "TW", "台北": "TW", "新北": "TW", "彰化": "TW", "高雄": "TW",
	"日本": "JP", "东京": "JP", "東京": "JP", "大阪": "JP", "埼玉": "JP", "沪日": "JP",
	"新加坡": "SG", "狮城": "SG", "獅城": "SG", "沪新": "SG",
	"美国": "US", "美國": "US", "洛杉矶": "US", "圣何塞": "US", "硅谷": "US", "西雅图": "US",
	"芝加哥": "US", "纽约": "US", "达拉斯": "US", "凤凰城": "US", "迈阿密": "US", "亚特兰大": "US",
	"韩国": "KR", "韓國": "KR", "首尔": "KR", "春川": "KR",
	"英国": "GB", "英國": "GB", "伦敦": "GB",
	"德国": "DE", "德國": "DE", "法兰克福": "DE",
	"法国": "FR", "法國": "FR", "巴黎": "FR",
	"荷兰": "NL", "荷蘭": "NL", "阿姆斯特丹": "NL",
	"俄罗斯": "RU", "俄羅斯": "RU", "莫斯科": "RU", "伯力": "RU",
	"加拿大": "CA", "多伦多": "CA", "温哥华": "CA",
	"澳大利亚": "AU", "澳洲": "AU", "悉尼": "AU",
	"印度": "IN", "孟买": "IN",
	"土耳其": "TR", "伊斯坦布尔": "TR",
	"阿根廷": "AR", "巴西": "BR", "智利": "CL", "墨西哥": "MX",
	"马来西亚": "MY", "吉隆坡": "MY",
	"泰国": "TH", "曼谷": "TH",
	"越南": "VN", "菲律宾": "PH",
	"印尼": "ID", "印度尼西亚": "ID", "雅加达": "ID",
	"澳门": "MO", "澳門": "MO",
	"乌克兰": "UA", "意大利": "IT", "西班牙": "ES", "瑞士": "CH", "瑞典": "SE",
	"爱尔兰": "IE", "波兰": "PL", "以色列": "IL", "阿联酋": "AE", "迪拜": "AE",
	"南非": "ZA", "埃及": "EG", "尼日利亚": "NG", "哈萨克斯坦": "KZ", "蒙古": "MN",
	"柬埔寨": "KH", "缅甸": "MM", "巴基斯坦": "PK", "孟加拉": "BD", "新西兰": "NZ",
}

// englishKeywords are matched on letter boundaries, longest first. Keys of
// at most three upper-case letters are case-sensitive so that "us" in a
// word like "plus" never matches.
var englishKeywords = map[string]string{
	"Hong Kong": "HK", "HongKong": "HK", "HKG": "HK", "HK": "HK",
	"Taiwan": "TW", "Taipei": "TW", "TW": "TW", "TWN": "TW",
	"Japan": "JP", "Tokyo": "JP", "Osaka": "JP", "Saitama": "JP", "JP": "JP", "JPN": "JP",
	"Singapore": "SG", "SG": "SG", "SGP": "SG",
	"United States": "US", "America": "US", "USA": "US", "US": "US",
	"Los Angeles": "US", "San Jose": "US", "Silicon Valley": "US", "Seattle": "US",
	"Chicago": "US", "New York": "US", "Dallas": "US", "Phoenix": "US", "Miami": "US", "Atlanta": "US",
	"Korea": "KR", "Seoul": "KR", "KR": "KR", "KOR": "KR",
	"United Kingdom": "GB", "Britain": "GB", "England": "GB", "London": "GB", "UK": "GB", "GB": "GB",
	"Germany": "DE", "Frankfurt": "DE", "DE": "DE",
	"France": "FR", "Paris": "FR", "FR": "FR",
	"Netherlands": "NL", "Amsterdam": "NL", "NL": "NL",
	"Russia": "RU", "Moscow": "RU", "RU": "RU",
	"Canada": "CA", "Toronto": "CA", "Vancouver": "CA",
	"Australia": "AU", "Sydney": "AU", "AU": "AU",
	"India": "IN", "Mumbai": "IN",
	"Turkey": "TR", "Istanbul": "TR", "TR": "TR",
	"Argentina": "AR", "Brazil": "BR", "Mexico": "MX",
	"Malaysia": "MY", "Kuala Lumpur": "MY",
	"Thailand": "TH", "Bangkok": "TH", "TH": "TH",
	"Vietnam": "VN", "VN": "VN",
	"Philippines": "PH", "PH": "PH",
	"Indonesia": "ID", "Jakarta": "ID",
	"Macau": "MO", "Macao": "MO",
	"Ukraine": "UA", "UA": "UA",
	"Italy": "IT", "Spain": "ES", "Switzerland": "CH", "Sweden": "SE", "Ireland": "IE", "Poland": "PL",
	"Israel": "IL", "Dubai": "AE", "UAE": "AE", "South Africa": "ZA", "New Zealand": "NZ",
}

// displayNames are the Chinese labels used in output names. Codes not
// listed fall back to the CLDR Chinese region name.
var displayNames = map[string]string{
	"HK": "香港", "TW": "台湾", "JP": "日本", "SG": "新加坡", "US": "美国", "KR": "韩国",
	"GB": "英国", "DE": "德国", "FR": "法国", "NL": "荷兰", "RU": "俄罗斯", "CA": "加拿大",
	"AU": "澳大利亚", "IN": "印度", "TR": "土耳其", "AR": "阿根廷", "BR": "巴西", "MX": "墨西哥",
	"MY": "马来西亚", "TH": "泰国", "VN": "越南", "PH": "菲律宾", "ID": "印尼", "MO": "澳门",
	"UA": "乌克兰", "IT": "意大利", "ES": "西班牙", "CH": "瑞士", "SE": "瑞典", "IE": "爱尔兰",
	"PL": "波兰", "IL": "以色列", "AE": "阿联酋", "ZA": "南非", "NZ": "新西兰", "CL": "智利",
}

// countryNames holds the full country name where it differs from the
// regional label above.
var countryNames = map[string]string{
	"HK": "中国香港", "TW": "中国台湾", "MO": "中国澳门",
	"AE": "阿拉伯联合酋长国", "ID": "印度尼西亚", "ZA": "南非共和国",
}

// City is one disambiguating city of a multi-city country.
type City struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// DefaultMultiCity lists countries whose nodes are labelled by city.
var DefaultMultiCity = map[string][]City{
	"US": {
		{Name: "洛杉矶", Keywords: []string{"洛杉矶", "Los Angeles", "LAX"}},
		{Name: "圣何塞", Keywords: []string{"圣何塞", "San Jose", "SJC"}},
		{Name: "硅谷", Keywords: []string{"硅谷", "Silicon Valley"}},
		{Name: "西雅图", Keywords: []string{"西雅图", "Seattle", "SEA"}},
		{Name: "芝加哥", Keywords: []string{"芝加哥", "Chicago", "ORD"}},
		{Name: "纽约", Keywords: []string{"纽约", "New York", "NYC"}},
		{Name: "达拉斯", Keywords: []string{"达拉斯", "Dallas", "DFW"}},
		{Name: "凤凰城", Keywords: []string{"凤凰城", "Phoenix", "PHX"}},
		{Name: "迈阿密", Keywords: []string{"迈阿密", "Miami", "MIA"}},
		{Name: "亚特兰大", Keywords: []string{"亚特兰大", "Atlanta", "ATL"}},
	},
	"JP": {
		{Name: "东京", Keywords: []string{"东京", "東京", "Tokyo", "NRT", "HND"}},
		{Name: "大阪", Keywords: []string{"大阪", "Osaka", "KIX"}},
		{Name: "埼玉", Keywords: []string{"埼玉", "Saitama"}},
	},
}
