package parser

import "fmt"

func quoteFragment(open, closePrice string) string {
	return fmt.Sprintf(`<section>
<div class="Pb(10px) Ovx(a) W(100%%)">
<table>
<thead><tr><th>Date</th><th>Open</th><th>High</th><th>Low</th><th>Close*</th><th>Adj Close**</th><th>Volume</th></tr></thead>
<tbody>
<tr><td class="Py(10px) Ta(start) Pend(10px)"><span>Jul 10, 2023</span></td><td><span>%s</span></td><td><span>153.00</span></td><td><span>149.10</span></td><td><span>%s</span></td><td><span>152.30</span></td><td><span>48,123,100</span></td></tr>
<tr><td class="Py(10px) Ta(start) Pend(10px)"><span>Jul 07, 2023</span></td><td><span>1.00</span></td><td><span>1.00</span></td><td><span>1.00</span></td><td><span>1.00</span></td><td><span>1.00</span></td><td><span>1</span></td></tr>
</tbody>
</table>
</div>
</section>`, open, closePrice)
}

func profileFragment(addressBlock, industry, employees string) string {
	return fmt.Sprintf(`<section>
<div class="asset-profile-container"><div><div>
<h3>Example Corp</h3>
<p class="D(ib) W(47.727%%) Pend(40px)">%s</p>
<p class="D(ib) Va(t)"><span>Sector(s)</span>: <span>Technology</span><br><span>Industry</span>: <span>%s</span><br><span>Full Time Employees</span>: <span><span>%s</span></span></p>
</div></div></div>
</section>`, addressBlock, industry, employees)
}

func marketCapFragment(value string) string {
	return fmt.Sprintf(`<div id="quote-summary">
<div class="D(ib) W(1/2) Bxz(bb) Pstart(12px) Va(t) ie-7_D(i)">
<table><tbody>
<tr><td class="C($primaryColor) W(51%%)"><span>Market Cap</span></td><td class="Ta(end) Fw(600) Lh(14px)">%s</td></tr>
<tr><td class="C($primaryColor) W(51%%)"><span>Beta (5Y Monthly)</span></td><td class="Ta(end) Fw(600) Lh(14px)">1.29</td></tr>
</tbody></table>
</div>
</div>`, value)
}

const fixtureAddress = `123 Main St<br>Anytown, CA 94000<br>United States<br><a href="tel:5550100">555 0100</a><br><a href="https://example.test">https://example.test</a>`
