package datasource

// Shared upstream payloads used across the package tests.

const samplePCF = "ETF Code,ETF Name,Fund Cash Component,Shares Outstanding,Fund Date\r\n" +
	"1306,TOPIX ETF,496973797639.0,8133974978,20260227\r\n" +
	"\r\n" +
	"Code,Name,ISIN,Exchange,Currency,Shares Amount,Stock Price\r\n" +
	"1332,NISSUI CORPORATION,JP3718800000,TSE,JPY,7647000.0,1506.5\r\n" +
	"7203,TOYOTA MOTOR,JP3633400001,TSE,JPY,3000000.0,2500.0\r\n"

const sampleFeeHTML = `<html><body>
<table>
<tr><th>コード</th><th>銘柄名</th><th>信託報酬</th></tr>
<tr><td>1306</td><td>TOPIX ETF</td><td>0.06%</td></tr>
<tr><td>2644</td><td>半導体ETF</td><td>0.4125%</td></tr>
</table>
</body></html>`

const sampleMarketCSV = `"1306.T","01306","TOPIX ETF","東証ETF","TOPIX","0.06","株式","日本","2500",` +
	`"2.50","3.10","5.20","10.50","30.00","50.00","100.00","80.00","1.20",` +
	`"円","1.95","100.00","2026/02/27","TOPIX連動型上場投資信託","desc","50000","百万円","2026/01/30","",""` + "\n" +
	`"2644.T","02644","Global X Semiconductor JP","東証ETF","半導体","0.41","株式","日本","3000",` +
	`"5.10","8.20","12.30","25.00","","","","","3.50",` +
	`"円","0.50","200.00","2026/02/27","半導体ETF","desc","30000","百万円","2026/01/30","",""` + "\n" +
	`"2800.HK","02800","Tracker Fund HK","香港","Hang Seng","0.07","株式","香港","332",` +
	`"2.93","-1.44","2.04","4.26","15.42","14.20","69.75","46.68","8.21",` +
	`"香港ドル","2.89","26.60","2026/02/26","トラッカー","desc","148545","百万香港ドル","2026/01/30","",""` + "\n"
